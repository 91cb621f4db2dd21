package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Capture lifecycle (info)
		"Capturing %s":                   "%s をキャプチャ中",
		"Capture finished in %d ms":      "キャプチャが %d ms で完了しました",
		"Capture failed: %s":             "キャプチャに失敗しました: %s",
		"Capture failed (%s): %s":        "キャプチャに失敗しました (%s): %s",
		"Invalid capture URL %q: %s":     "キャプチャURL %q が不正です: %s",
		"No URL, exiting...":             "URLが指定されていないため終了します...",
		"Interrupted, shutting down...":  "中断されました。シャットダウン中...",
		"Browser session acquired":       "ブラウザセッションを取得しました",
		"Closing browser":                "ブラウザを閉じています",
		"Failed to close browser: %s":    "ブラウザを閉じられませんでした: %s",
		"Creating exit file: %s":         "終了ファイルを作成中: %s",
		"Failed to create exit file: %s": "終了ファイルを作成できませんでした: %s",
		"Proxy exit notification failed: %s": "プロキシへの終了通知に失敗しました: %s",
		"Failed to send notification: %s":    "通知を送信できませんでした: %s",
		"Failed to save job JSON: %s":        "ジョブJSONを保存できませんでした: %s",

		// Browser
		"Attached to browser at %s:%d":            "%s:%d のブラウザに接続しました",
		"Browser not reachable yet (attempt %d): %v": "ブラウザにまだ接続できません (試行 %d): %v",

		// Navigation
		"Navigating to %s":                   "%s へ移動中",
		"Page loaded in %d ms":               "ページを %d ms で読み込みました",
		"Failed to navigate: %s":             "ページ移動に失敗しました: %s",
		"Failed to disable cache: %s":        "キャッシュを無効化できませんでした: %s",
		"Embed lookup failed: %s":            "埋め込み情報の取得に失敗しました: %s",
		"Embed rejected by recording proxy: %s": "記録プロキシが埋め込みを拒否しました: %s",
		"Not a known embed, loading %s":      "既知の埋め込みではないため %s を読み込みます",
		"Capturing regular page":             "通常のページをキャプチャ中",

		// Behavior
		"Running %s behavior":                          "%s の操作を実行中",
		"Behavior %s done (idle wait requested: %t)":   "%s の操作が完了しました (アイドル待機要求: %t)",
		"No behavior for %s":                           "%s に対応する操作はありません",
		"Waiting for network idle (%s)":                "ネットワークのアイドルを待機中 (%s)",
		"Network did not go idle: %s":                  "ネットワークがアイドルになりませんでした: %s",
		"Waiting for %d video player(s) to finish":     "%d 個の動画プレイヤーの終了を待機中",
		"Video wait timed out after %s":                "動画の待機が %s でタイムアウトしました",
		"Failed to watch media players: %s":            "動画プレイヤーを監視できませんでした: %s",
		"Auto-scroll stopped: %s":                      "自動スクロールを中断しました: %s",
		"Failed to take screenshot: %s":                "スクリーンショットを撮影できませんでした: %s",
		"Failed to store screenshot: %s":               "スクリーンショットを保存できませんでした: %s",
		"Failed to save debug screenshot: %s":          "デバッグ用スクリーンショットを保存できませんでした: %s",
		"Failed to read page location: %s":             "ページのURLを取得できませんでした: %s",

		// Settle
		"Pending: %d in flight, %d bytes":                     "保留中: %d 件処理中, %d バイト",
		"Pending writes settled: %d in flight, %d bytes":      "書き込みが落ち着きました: %d 件処理中, %d バイト",
		"Pending writes settled after %d samples":             "%d 回のサンプルで書き込みが落ち着きました",
		"Pending writes did not settle within %s, continuing": "書き込みが %s 以内に落ち着かなかったため続行します",
		"Failed to sample pending writes: %s":                 "保留中の書き込みを取得できませんでした: %s",

		// Commit
		"Archive committed for %s":                       "%s のアーカイブを確定しました",
		"Archive uploaded to %s":                         "アーカイブを %s にアップロードしました",
		"Uploaded %d bytes to %s":                        "%d バイトを %s にアップロードしました",
		"Failed to commit archive: %s":                   "アーカイブを確定できませんでした: %s",
		"Failed to upload archive: %s":                   "アーカイブをアップロードできませんでした: %s",
		"Failed to presign access URL: %s":               "アクセスURLを署名できませんでした: %s",
		"No recording proxy configured, nothing to commit": "記録プロキシが設定されていないため確定処理はありません",
		"No upload destination, keeping %s":              "アップロード先がないため %s を保持します",

		// Channel and server
		"Capture %s requested for %s":                   "キャプチャ %s が %s に対して要求されました",
		"Capture %s cancelled (%s): %v":                 "キャプチャ %s を中止しました (%s): %v",
		"Capture %s ended with error: %v":               "キャプチャ %s がエラーで終了しました: %v",
		"Channel closed before a capture URL arrived: %v": "キャプチャURLの受信前に接続が閉じられました: %v",
		"Websocket upgrade failed: %v":                  "WebSocketへの切り替えに失敗しました: %v",
		"Failed to encode status: %v":                   "ステータスをエンコードできませんでした: %v",
		"Listening on %s":                               "%s で待ち受け中",
		"Server shutdown failed: %v":                    "サーバーの停止に失敗しました: %v",
		"Failed to scale screenshot: %v":                "スクリーンショットを縮小できませんでした: %v",
		"oEmbed lookup for %s failed: %v":               "%s の oEmbed 取得に失敗しました: %v",
		"oEmbed lookup for %s returned %d":              "%s の oEmbed 取得がステータス %d を返しました",
		"Webhook %s notified":                           "Webhook %s に通知しました",
		"Webhook %s failed: %v":                         "Webhook %s への通知に失敗しました: %v",
	})
}
