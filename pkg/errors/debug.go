package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v84"
)

// ErrorDump flattens an error chain into loggable fields, including database
// and billing provider details when present.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`

	StripeType        string `json:"stripe_type,omitempty"`
	StripeCode        string `json:"stripe_code,omitempty"`
	StripeDeclineCode string `json:"stripe_decline_code,omitempty"`
	StripeRequestID   string `json:"stripe_request_id,omitempty"`
	StripeHTTPStatus  int    `json:"stripe_http_status,omitempty"`

	BreakerOpen bool `json:"breaker_open,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		d.StripeType = string(stripeErr.Type)
		d.StripeCode = string(stripeErr.Code)
		d.StripeDeclineCode = string(stripeErr.DeclineCode)
		d.StripeRequestID = stripeErr.RequestID
		d.StripeHTTPStatus = stripeErr.HTTPStatusCode
	}
	d.BreakerOpen = errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
		return d
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}

	return d
}

// Fields returns the non-empty dump entries keyed for structured logging.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.TopMessage,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	add := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	add("pg_code", d.PGCode)
	add("pg_detail", d.PGDetail)
	add("pg_message", d.PGMessage)
	add("pg_table", d.PGTable)
	add("pg_column", d.PGColumn)
	add("pg_constraint", d.PGConstraint)
	add("stripe_type", d.StripeType)
	add("stripe_code", d.StripeCode)
	add("stripe_decline_code", d.StripeDeclineCode)
	add("stripe_request_id", d.StripeRequestID)
	if d.StripeHTTPStatus != 0 {
		fields["stripe_http_status"] = d.StripeHTTPStatus
	}
	if d.BreakerOpen {
		fields["breaker_open"] = true
	}
	return fields
}
