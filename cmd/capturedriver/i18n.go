// Package main provides localization for the capturedriver CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Root command
		"Drive a remote browser through a recording proxy to archive a web page": "リモートブラウザを記録プロキシ経由で操作し、Webページをアーカイブします",

		// Global flags
		"YAML configuration file":                "YAML設定ファイル",
		"Log level (debug, info, warn, error)":   "ログレベル（debug, info, warn, error）",
		"Log format (console, json)":             "ログ形式（console, json）",
		"Rotated JSON log file":                  "ローテーションされるJSONログファイル",
		"Suppress all log output":                "すべてのログ出力を抑制",

		// Run command
		"Capture one URL and exit":                                         "1つのURLをキャプチャして終了",
		"Job id reported to webhooks and the access URL":                   "Webhookとアクセス URL に使われるジョブID",
		"Upload destination (s3://bucket/key)":                             "アップロード先（s3://bucket/key）",
		"Serve status and embed pages on this address during the capture":  "キャプチャ中にこのアドレスでステータスと埋め込みページを提供",
		"Write a Markdown summary of the capture to this file":             "キャプチャの概要をMarkdownでこのファイルに書き出す",
		"Save screenshots and the job JSON to the debug directory":         "スクリーンショットとジョブJSONをデバッグディレクトリに保存",
		"Directory for debug output":                                       "デバッグ出力用ディレクトリ",

		// Serve command
		"Accept capture requests over a websocket channel": "WebSocketチャネルでキャプチャ要求を受け付ける",
		"Address to listen on":                             "待ち受けアドレス",

		// Watch command
		"Request a capture from a running server and follow its progress": "起動中のサーバーにキャプチャを要求し、進捗を表示",
		"Capture channel endpoint":                                        "キャプチャチャネルのエンドポイント",
		"Print every status update as JSON":                               "すべてのステータス更新をJSONで出力",
		"A URL to capture is required":                                    "キャプチャするURLが必要です",
		"Capture %s failed: %v":                                           "キャプチャ %s が失敗しました: %v",
		"Capture %s did not finish":                                       "キャプチャ %s は完了しませんでした",

		// Version command
		"Show version information":      "バージョン情報を表示",
		"capturedriver version %s":      "capturedriver バージョン %s",

		// Session flags
		"Remote browser host":                           "リモートブラウザのホスト",
		"Remote browser debugging port":                 "リモートブラウザのデバッグポート",
		"Recording proxy host (empty for a dry run)":    "記録プロキシのホスト（空の場合はドライラン）",
		"Recording proxy port":                          "記録プロキシのポート",
		"Capture known embeds through their wrapper page": "既知の埋め込みをラッパーページ経由でキャプチャ",
		"Disable the browser cache and service workers": "ブラウザのキャッシュとService Workerを無効化",
		"Scroll pages without a specific behavior":      "専用の操作がないページをスクロールする",
		"File created when browsing is over":            "ブラウズ終了時に作成するファイル",
		"Archive file written by the recording proxy":   "記録プロキシが書き出すアーカイブファイル",
	})
}
