package utils

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorHandleNotFound marks a messaging-handle lookup that found no handle
// for the given email. A resolution miss, not a failure.
var ErrorHandleNotFound = errors.New("messaging handle not found")

// IsDuplicateEntry reports whether err is a MySQL unique-constraint violation
// (error 1062).
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
