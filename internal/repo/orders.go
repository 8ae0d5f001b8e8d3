package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/financing-gateway/internal/order"
)

// Orders is a pgx-backed order.Store. Status transitions and metadata writes
// share a transaction so the store never exposes partial state.
type Orders struct {
	Pool *pgxpool.Pool
}

const orderColumns = `id::text, number, email, phone, given_name, family_name,
	country, postcode, city, street, shipping_total, total, currency, status, COALESCE(payment_ref, '')`

// Get loads an order with its line items and metadata.
func (r Orders) Get(ctx context.Context, id string) (order.Order, error) {
	return r.getWhere(ctx, "id = $1::uuid", id)
}

// FindByUsage resolves an order by its usage token. Zero or multiple matches
// are reported as order.ErrNotFound: the token is the only correlation key the
// provider echoes back, so an ambiguous match must never be guessed at.
func (r Orders) FindByUsage(ctx context.Context, usage string) (order.Order, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT order_id::text FROM order_meta WHERE meta_key = $1 AND meta_value = $2 LIMIT 2`,
		order.MetaUsage, usage)
	if err != nil {
		return order.Order{}, fmt.Errorf("query usage token: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return order.Order{}, fmt.Errorf("collect usage matches: %w", err)
	}
	if len(ids) != 1 {
		return order.Order{}, order.ErrNotFound
	}
	return r.Get(ctx, ids[0])
}

// SaveFinancingRef writes the metadata pair in one transaction. A second
// successful offer for the same order overwrites the previous pair.
func (r Orders) SaveFinancingRef(ctx context.Context, id, encodedURL, usage string) error {
	return pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		if err := upsertMeta(ctx, tx, id, order.MetaRegisterURL, encodedURL); err != nil {
			return err
		}
		return upsertMeta(ctx, tx, id, order.MetaUsage, usage)
	})
}

// UpdateStatus transitions the order and records the human-readable note.
func (r Orders) UpdateStatus(ctx context.Context, id, status, note string) error {
	return pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		return updateStatus(ctx, tx, id, status, note, "")
	})
}

// ApplyOutcome performs the terminal transition: status update, optional
// payment reference, note, and removal of both metadata keys, atomically.
func (r Orders) ApplyOutcome(ctx context.Context, id, status, note, paymentRef string) error {
	return pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		if err := updateStatus(ctx, tx, id, status, note, paymentRef); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`DELETE FROM order_meta WHERE order_id = $1::uuid AND meta_key IN ($2, $3)`,
			id, order.MetaRegisterURL, order.MetaUsage)
		if err != nil {
			return fmt.Errorf("clear financing metadata: %w", err)
		}
		return nil
	})
}

func (r Orders) getWhere(ctx context.Context, where string, arg any) (order.Order, error) {
	var o order.Order
	row := r.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg)
	err := row.Scan(&o.ID, &o.Number, &o.Email, &o.Phone, &o.GivenName, &o.FamilyName,
		&o.Country, &o.Postcode, &o.City, &o.Street, &o.ShippingTotal, &o.Total, &o.Currency,
		&o.Status, &o.PaymentRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, fmt.Errorf("load order: %w", err)
	}

	itemRows, err := r.Pool.Query(ctx,
		`SELECT description, unit_amount, quantity FROM order_items WHERE order_id = $1::uuid ORDER BY id`, o.ID)
	if err != nil {
		return order.Order{}, fmt.Errorf("load order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(itemRows, func(row pgx.CollectableRow) (order.LineItem, error) {
		var item order.LineItem
		err := row.Scan(&item.Description, &item.UnitAmount, &item.Quantity)
		return item, err
	})
	if err != nil {
		return order.Order{}, fmt.Errorf("collect order items: %w", err)
	}

	metaRows, err := r.Pool.Query(ctx,
		`SELECT meta_key, meta_value FROM order_meta WHERE order_id = $1::uuid`, o.ID)
	if err != nil {
		return order.Order{}, fmt.Errorf("load order metadata: %w", err)
	}
	o.Meta = map[string]string{}
	var key, value string
	_, err = pgx.ForEachRow(metaRows, []any{&key, &value}, func() error {
		o.Meta[key] = value
		return nil
	})
	if err != nil {
		return order.Order{}, fmt.Errorf("collect order metadata: %w", err)
	}
	return o, nil
}

func upsertMeta(ctx context.Context, tx pgx.Tx, orderID, key, value string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO order_meta (order_id, meta_key, meta_value) VALUES ($1::uuid, $2, $3)
		 ON CONFLICT (order_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`,
		orderID, key, value)
	if err != nil {
		return fmt.Errorf("upsert metadata %s: %w", key, err)
	}
	return nil
}

func updateStatus(ctx context.Context, tx pgx.Tx, id, status, note, paymentRef string) error {
	var tag string
	var err error
	if paymentRef != "" {
		tag = `UPDATE orders SET status = $2, payment_ref = $3, updated_at = now() WHERE id = $1::uuid`
		_, err = execChecked(ctx, tx, tag, id, status, paymentRef)
	} else {
		tag = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1::uuid`
		_, err = execChecked(ctx, tx, tag, id, status)
	}
	if err != nil {
		return err
	}
	if note != "" {
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_notes (order_id, note) VALUES ($1::uuid, $2)`, id, note); err != nil {
			return fmt.Errorf("record status note: %w", err)
		}
	}
	return nil
}

func execChecked(ctx context.Context, tx pgx.Tx, sql string, args ...any) (int64, error) {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, order.ErrNotFound
	}
	return tag.RowsAffected(), nil
}
