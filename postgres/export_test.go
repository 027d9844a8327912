package postgres

var (
	BuildWhere  = buildWhere
	BuildWindow = buildWindow
)
