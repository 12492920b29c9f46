// Package httpclient はJSONを送受信するHTTPクライアントを提供する。
//
// リモートドキュメントストアへのREST呼び出しと、CLIからゲートウェイへの
// 呼び出しで共通して使用する。タイムアウト、Bearerトークン、固定クエリ
// パラメータ、リクエストIDの伝播を扱う。
package httpclient
