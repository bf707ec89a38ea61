package storage

// UpdateOnly updates the given columns of model, bumping updated_at along.
func (conn *Connection) UpdateOnly(model interface{}, includeColumns ...string) error {
	includeColumns = append(includeColumns, "updated_at")
	return conn.UpdateColumns(model, includeColumns...)
}
