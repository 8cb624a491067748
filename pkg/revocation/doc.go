// Package revocation はアクセストークンとユーザーの失効を管理する。
//
// 失効情報はStore（SQLiteまたはRedis）に永続化され、Watcherが定期的に
// 読み込んでメモリ上のSnapshotに置き換える。トークン検証はSnapshotのみを参照するため、
// 検証の経路でI/Oは発生しない。
package revocation
