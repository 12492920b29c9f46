// Package validation はリクエストペイロードを宣言的なスキーマで検証する。
//
// スキーマはstructの `json` タグと `validate` タグ（go-playground/validator）で
// 宣言する。型の不一致、未知のフィールド、ルール違反をすべて1回の走査で
// 収集し、フィールドパスと人間向けメッセージの組として返す。
package validation
