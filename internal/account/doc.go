// Package account はユーザーアカウントの登録、ログイン、プロフィール参照・更新を提供する。
//
// ユーザーはリモートドキュメントストアの "user" コレクションに保存される。
// メールアドレスの一意性はストアではなく、このパッケージが全件走査で確認する。
// 走査と追加は不可分ではないため、同時登録による重複は防げない。
package account
