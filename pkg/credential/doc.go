// Package credential はパスワードの一方向ハッシュ化と照合を提供する。
//
// 保存済みクレデンシャルの形式（bcryptハッシュ、または移行前の平文）を判定し、
// 形式ごとの照合方式にディスパッチする。平文形式の受け入れは既存データとの
// 互換性のためだけに残しているセキュリティ上の負債であり、新規に平文が
// 書き込まれることはない。
package credential
