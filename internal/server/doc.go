// Package server は、カメラ制御のHTTP APIを提供します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - カメラセッションの作成・一覧・取得・削除
//   - AF/AE/AWB/フラッシュの切り替えと測光リクエストの受け付け
//   - カメラのエラーをHTTPステータスへ変換
//
// 仕様:
//   - ルーティングは gin を使用
//   - アクセスログは zap に出力
//   - 制御は非同期に適用されるため 202 Accepted を返す
//   - グレースフルシャットダウン時に全カメラセッションを閉じる
package server
