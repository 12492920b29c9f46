// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンの発行と検証、リクエストIDの付与、構造化アクセスログ、
// パニックリカバリ、CORS設定など、ゲートウェイとローカルドキュメントストアで
// 共通して使用するインターセプタを含む。
package middleware
