// Package catalog は商品カタログの参照・作成・更新・削除を提供する。
//
// 商品はリモートドキュメントストアの "products" コレクションに保存され、
// ストアが割り当てたキーを id として返す。一括作成は1件ずつ順に追加し、
// 途中で失敗しても追加済みの商品は取り消さない。
package catalog
