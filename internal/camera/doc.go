// Package camera ARトラッカーと共有するカメラのキャプチャ制御を担う
//
// # 責務
// - 共有カメラデバイスのオープン/クローズとライフサイクル管理
// - 繰り返しキャプチャリクエストの構築と更新
// - AF/AE/AWB の収束ルーチン（測光リクエスト → 収束検出 → 定常状態への引き継ぎ）
// - フラッシュ（トーチ）の切り替え
// - 複数カメラセッションの管理
//
// # 仕様
//   - Controller: 1台のカメラの制御。カメラAPI呼び出しとコールバックは
//     すべて CommandThread 上で直列化される
//   - RequestBuilder: 次に送る繰り返しリクエストの内容。コマンドスレッド専用
//   - RegionMapper: タップ位置からセンサー座標の測光領域への変換
//   - SharedCamera: ARトラッカー側の境界。デバイス/セッションのコールバックを
//     トラッカーが先に観測できるようにラップする
//   - Driver: カメラドライバーの境界。MockDriver と V4L2Driver を同梱
//   - Manager: セッションをUUIDで管理し、非同期エラーを記録する
//
// # 前提要件
//   - V4L2Driver は Linux のみ対応（go4vl を使用）
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
