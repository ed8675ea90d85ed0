// Package settings はユーザー設定の保存と背景スタイルの選択を扱う
package settings

import (
	"fmt"
	"image/color"

	"go.uber.org/zap"
)

// KeySelectedBackground は背景スタイルを保存するキー
const KeySelectedBackground = "selectedBackground"

// BackgroundStyle は仮想背景のスタイル
type BackgroundStyle string

const (
	BackgroundNone   BackgroundStyle = "None"
	BackgroundBlur   BackgroundStyle = "Blur"
	BackgroundBlack  BackgroundStyle = "Black"
	BackgroundWhite  BackgroundStyle = "White"
	BackgroundBlue   BackgroundStyle = "Blue"
	BackgroundGreen  BackgroundStyle = "Green"
	BackgroundPurple BackgroundStyle = "Purple"
	BackgroundPink   BackgroundStyle = "Pink"
)

var backgroundColors = map[BackgroundStyle]color.RGBA{
	BackgroundBlack:  {R: 0, G: 0, B: 0, A: 255},
	BackgroundWhite:  {R: 255, G: 255, B: 255, A: 255},
	BackgroundBlue:   {R: 51, G: 102, B: 204, A: 255},
	BackgroundGreen:  {R: 51, G: 179, B: 102, A: 255},
	BackgroundPurple: {R: 153, G: 77, B: 204, A: 255},
	BackgroundPink:   {R: 230, G: 102, B: 153, A: 255},
}

// Backgrounds は選択できる全てのスタイルを表示順に返す
func Backgrounds() []BackgroundStyle {
	return []BackgroundStyle{
		BackgroundNone,
		BackgroundBlur,
		BackgroundBlack,
		BackgroundWhite,
		BackgroundBlue,
		BackgroundGreen,
		BackgroundPurple,
		BackgroundPink,
	}
}

// ParseBackground は文字列をスタイルに変換する。未知の値は None になる
func ParseBackground(s string) BackgroundStyle {
	for _, style := range Backgrounds() {
		if string(style) == s {
			return style
		}
	}
	return BackgroundNone
}

// Valid は既知のスタイルかを返す
func (b BackgroundStyle) Valid() bool {
	return ParseBackground(string(b)) == b
}

// Color は単色背景の色を返す。None と Blur は色を持たない
func (b BackgroundStyle) Color() (color.RGBA, bool) {
	c, ok := backgroundColors[b]
	return c, ok
}

// Hex は色を #rrggbb 形式で返す。色を持たない場合は空文字列
func (b BackgroundStyle) Hex() string {
	c, ok := b.Color()
	if !ok {
		return ""
	}
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Preferences は Store 上のユーザー設定
type Preferences struct {
	store  Store
	logger *zap.Logger
}

// NewPreferences は新しい Preferences を作成する
func NewPreferences(store Store, logger *zap.Logger) *Preferences {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preferences{store: store, logger: logger.Named("settings")}
}

// Background は保存されている背景スタイルを返す
func (p *Preferences) Background() BackgroundStyle {
	raw, ok := p.store.Get(KeySelectedBackground)
	if !ok {
		return BackgroundNone
	}

	style := ParseBackground(raw)
	if string(style) != raw {
		p.logger.Warn("未知の背景スタイルを None として扱います", zap.String("value", raw))
	}
	return style
}

// SetBackground は背景スタイルを保存する
func (p *Preferences) SetBackground(style BackgroundStyle) error {
	if !style.Valid() {
		return fmt.Errorf("未知の背景スタイルです: %q", style)
	}
	if err := p.store.Set(KeySelectedBackground, string(style)); err != nil {
		return fmt.Errorf("背景スタイルの保存に失敗: %w", err)
	}
	p.logger.Info("背景スタイルを変更しました", zap.String("style", string(style)))
	return nil
}
