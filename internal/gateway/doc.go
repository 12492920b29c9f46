// Package gateway はユーザーアカウントと商品カタログのHTTP APIを提供する。
//
// リクエストはリクエストID付与、アクセスログ、パニック回復、CORSの順に処理され、
// 保護されたルートでは認証、スキーマ検証を経てハンドラに到達する。
// 永続化はすべてリモートドキュメントストアへのREST呼び出しで行い、
// このパッケージ自身は状態を持たない。
package gateway
