// Package logging はアプリケーション共通のzapロガーを構築する
package logging

import (
	"fmt"

	"go.uber.org/zap"

	"sharedcam/internal/config"
)

// New は設定からロガーを作成する
// Development が true なら人間向けのコンソール出力になる
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level := cfg.Level
	if level == "" {
		level = "info"
	}

	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("無効なログレベル %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = atomicLevel

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ロガーの構築に失敗: %w", err)
	}

	return logger, nil
}
