package mysql

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormExprIncr bumps the optimistic-lock version column in the same
// statement as the rest of an UPDATE; the payment updates in this store
// use it.
func gormExprIncr() clause.Expr {
	return gorm.Expr("version + 1")
}
