package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Report is a structured view of an error chain, shaped for log output.
type Report struct {
	Message string         `json:"message"`
	Code    Code           `json:"code,omitempty"`
	Chain   []string       `json:"chain,omitempty"`
	PG      *PGDiagnostics `json:"pg,omitempty"`
}

// PGDiagnostics carries the driver-level detail behind a postgres failure.
type PGDiagnostics struct {
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Constraint string `json:"constraint,omitempty"`
}

// Inspect flattens err for logging: the outermost message, the classification
// if one is buried in the chain, each unwrap step, and postgres diagnostics
// when a driver error caused the failure. The chain is omitted when it would
// only repeat the message.
func Inspect(err error) Report {
	if err == nil {
		return Report{}
	}

	r := Report{
		Message: err.Error(),
		PG:      pgDiagnostics(err),
	}
	if typed := As(err); typed != nil {
		r.Code = typed.Code()
	}
	if chain := unwrapChain(err); len(chain) > 1 {
		r.Chain = chain
	}
	return r
}

func unwrapChain(err error) []string {
	var chain []string
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	return chain
}

// pgDiagnostics recognizes both postgres drivers that can surface here.
func pgDiagnostics(err error) *PGDiagnostics {
	var pgxErr *pgconn.PgError
	if stderrors.As(err, &pgxErr) {
		return &PGDiagnostics{
			Code:       pgxErr.Code,
			Message:    pgxErr.Message,
			Detail:     pgxErr.Detail,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Constraint: pgxErr.ConstraintName,
		}
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return &PGDiagnostics{
			Code:       string(pqErr.Code),
			Message:    pqErr.Message,
			Detail:     pqErr.Detail,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Constraint: pqErr.Constraint,
		}
	}

	return nil
}
