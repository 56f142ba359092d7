package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicate is returned when an insert violates a unique index. The
// datastore's constraint is the final authority on uniqueness; callers
// treat their own existence pre-checks as a fast path only.
var ErrDuplicate = errors.New("duplicate entry")

const mysqlDuplicateEntry = 1062

func translateDuplicate(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return ErrDuplicate
	}
	return err
}
