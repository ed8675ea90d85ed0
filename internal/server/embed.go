package server

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed all:dist
var embedFS embed.FS

// staticFS は dist 以下のファイルシステムを返す
func staticFS() (fs.FS, error) {
	sub, err := fs.Sub(embedFS, "dist")
	if err != nil {
		return nil, fmt.Errorf("埋め込み静的ファイルシステムの作成に失敗: %w", err)
	}
	return sub, nil
}

// indexHTML は index.html の内容を返す
func indexHTML() ([]byte, error) {
	data, err := embedFS.ReadFile("dist/index.html")
	if err != nil {
		return nil, fmt.Errorf("埋め込みindex.htmlの読み込みに失敗: %w", err)
	}
	return data, nil
}
