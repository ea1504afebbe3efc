// Package jobs runs the periodic background work: the retention sweep and
// the optional GeoLite database refresh.
package jobs

import (
	"gorm.io/gorm"
)

// ConnectionProvider hands out the shared database connection. Both the
// production DBManager and the test manager satisfy it.
type ConnectionProvider interface {
	GetConnection() *gorm.DB
}
