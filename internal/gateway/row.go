package gateway

// Column accessors tolerant of the type variance a row picks up on its way
// through a store (int vs int64, bool vs 0/1, TEXT as []byte).

func rowString(row Row, col string) string {
	switch v := row[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func rowInt64(row Row, col string) int64 {
	n, _ := asInt64(row[col])
	return n
}

func rowBool(row Row, col string) bool {
	n, ok := asInt64(row[col])
	return ok && n != 0
}
