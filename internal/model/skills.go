package model

import "strings"

// NormalizeSkills はスキル一覧を集合として正規化する。
// 前後の空白を除き、空要素と大文字小文字違いの重複を取り除く。最初に現れた表記を残す。
func NormalizeSkills(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	skills := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		skills = append(skills, s)
	}
	return skills
}
