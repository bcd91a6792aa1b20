package model

// CascadeResult はカスケード削除で削除されたエンティティ数を表す。
type CascadeResult struct {
	Users        int64
	Companies    int64
	Jobs         int64
	Applications int64
	Sessions     int64
}
