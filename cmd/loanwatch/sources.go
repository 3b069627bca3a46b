package main

import (
	"loanwatch/config"
	"loanwatch/internal/engine"
	"loanwatch/internal/refresher"
	"loanwatch/reader/alphbanx"
	"loanwatch/reader/dia"
	"loanwatch/reader/node"
)

// newRefresher connects a Refresher to the live price oracle, loan API and
// node RPC described by cfg.
func newRefresher(cfg *config.Config) (*refresher.Refresher, engine.Engine) {
	nodeReader := node.NewReader(cfg)
	calc := engine.New(cfg.Risk.MinCollateralRatio)
	r := refresher.New(cfg, refresher.Sources{
		Collateral: alphbanx.NewReader(cfg),
		Locator:    nodeReader,
		Positions:  nodeReader,
		Prices:     dia.NewReader(cfg),
	}, calc)
	return r, calc
}
