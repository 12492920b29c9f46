// Package docstore はリモートドキュメントストアと同じREST規約を話す
// ローカルのドキュメントストアを提供する。
//
// ゲートウェイの開発やテストで外部のストアを用意せずに済むよう、
// SQLiteにドキュメントを保持し、次の規約でHTTPから操作できるようにする。
//
//	GET    /db/<collection>.json       コレクション全体（空ならnull）
//	GET    /db/<collection>/<id>.json  1件のドキュメント（存在しなければnull）
//	POST   /db/<collection>.json       追加して {"name": "<id>"} を返す
//	PUT    /db/<collection>/<id>.json  丸ごと置き換えて保存内容を返す
//	PUT    /db/<collection>.json       コレクションを丸ごと置き換える
//	DELETE /db/<collection>/<id>.json  削除してnullを返す
//	DELETE /db/<collection>.json       コレクションを削除してnullを返す
//
// 識別子は時刻順に並ぶUUIDv7で割り当てる。
// 秘密鍵を設定した場合は auth クエリパラメータで照合する。
package docstore
