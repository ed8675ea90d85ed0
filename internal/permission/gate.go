package permission

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	missingUsageTitle   = "カメラ利用目的の説明がありません"
	missingUsageMessage = "camera.usage_description が設定されていません。説明がない場合、OSの許可ダイアログに利用目的が表示されず、アクセスが拒否されることがあります。"
)

// Options は Gate の生成オプション
type Options struct {
	UsageDescription string      // 許可ダイアログに表示する利用目的
	Production       bool        // 本番ビルドでは確認ダイアログを出さない
	Alerter          Alerter     // 非本番ビルドでの確認ダイアログ
	Publisher        Publisher   // 許可状態の書き込み先
	Logger           *zap.Logger // nil の場合は出力しない
}

// Gate はカメラ利用許可の問い合わせとリクエストを担う
type Gate struct {
	authorizer       Authorizer
	publisher        Publisher
	alerter          Alerter
	usageDescription string
	production       bool
	logger           *zap.Logger

	// 同時に複数のプロンプトを出さないためのロック
	requestMu sync.Mutex
	warnOnce  sync.Once
}

// NewGate は新しい Gate を作成する
func NewGate(authorizer Authorizer, opts Options) *Gate {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gate{
		authorizer:       authorizer,
		publisher:        opts.Publisher,
		alerter:          opts.Alerter,
		usageDescription: opts.UsageDescription,
		production:       opts.Production,
		logger:           logger.Named("permission"),
	}
	g.warnIfMissingUsageDescription()

	return g
}

// QueryStatus はキャッシュされた許可状態を返す。ユーザーへのプロンプトは行わない
func (g *Gate) QueryStatus(ctx context.Context) State {
	state := g.query(ctx)
	g.publish(state)
	return state
}

// RequestAccess は未決定の場合に許可ダイアログを表示し、応答まで待機する
//
// 既に許可済みなら即座に Authorized を返し、拒否・制限されている場合は
// プロンプトを出さずに Denied を返す
func (g *Gate) RequestAccess(ctx context.Context) State {
	g.warnIfMissingUsageDescription()

	g.requestMu.Lock()
	defer g.requestMu.Unlock()

	current := g.query(ctx)
	if current != StateNotDetermined {
		g.publish(current)
		return current
	}

	granted, err := g.authorizer.Request(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// 呼び出し側が待機をやめただけなので、状態は確定させない
			g.logger.Info("許可リクエストの待機が中断されました", zap.Error(err))
			return StateNotDetermined
		}
		if errors.Is(err, ErrNoDevice) {
			// デバイスが接続されれば次の問い合わせで確定する
			g.logger.Info("デバイスがないため許可状態は未決定のままです")
			g.publish(StateNotDetermined)
			return StateNotDetermined
		}
		g.logger.Warn("許可リクエストに失敗しました", zap.Error(err))
		g.publish(StateDenied)
		return StateDenied
	}

	state := StateDenied
	if granted {
		state = StateAuthorized
	}
	g.logger.Info("カメラ利用許可の応答を受け取りました", zap.String("state", string(state)))
	g.publish(state)

	return state
}

// query はバックエンドに問い合わせ、エラーは Denied に畳み込む
func (g *Gate) query(ctx context.Context) State {
	status, err := g.authorizer.Status(ctx)
	if err != nil {
		g.logger.Warn("許可状態の取得に失敗しました", zap.Error(err))
		return StateDenied
	}

	state := Fold(status)
	if status != OSStatusNotDetermined && status != OSStatusAuthorized &&
		status != OSStatusDenied && status != OSStatusRestricted {
		g.logger.Warn("未知の許可状態を Denied として扱います", zap.String("status", string(status)))
	}

	return state
}

func (g *Gate) publish(state State) {
	if g.publisher != nil {
		g.publisher.SetAuthorization(state)
	}
}

// warnIfMissingUsageDescription は利用目的の説明がない場合に1回だけ警告する
func (g *Gate) warnIfMissingUsageDescription() {
	if strings.TrimSpace(g.usageDescription) != "" {
		return
	}

	g.warnOnce.Do(func() {
		g.logger.Warn(missingUsageMessage)
		if !g.production && g.alerter != nil {
			g.alerter.Acknowledge(missingUsageTitle, missingUsageMessage)
		}
	})
}
