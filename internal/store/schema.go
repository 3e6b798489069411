package store

// schema is the DDL for the engine's relational facade, executed once at
// startup. Tables mirror the §6 persistence model: accounts/books,
// orders/positions, strategy and allocator state, multi-leg execution
// bookkeeping, market-derived series, and the append-only audit/alerts log.
const schema = `
CREATE TABLE IF NOT EXISTS books (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	capital_allocated TEXT NOT NULL,
	current_exposure TEXT NOT NULL,
	max_exposure TEXT NOT NULL,
	max_drawdown_limit TEXT NOT NULL,
	status TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS venues (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	base_url TEXT,
	maker_fee_bps TEXT NOT NULL,
	taker_fee_bps TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS instruments (
	id TEXT PRIMARY KEY,
	venue_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	tick_size TEXT NOT NULL,
	step_size TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS strategies (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	enabled INTEGER NOT NULL,
	definition_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS strategy_allocations (
	strategy_id TEXT PRIMARY KEY,
	weight TEXT NOT NULL,
	allocated_capital TEXT NOT NULL,
	risk_multiplier TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS strategy_performance (
	strategy_id TEXT NOT NULL,
	as_of DATETIME NOT NULL,
	sharpe TEXT NOT NULL,
	max_dd TEXT NOT NULL,
	PRIMARY KEY (strategy_id, as_of)
);

CREATE TABLE IF NOT EXISTS strategy_risk_metrics (
	strategy_id TEXT PRIMARY KEY,
	max_risk_per_trade TEXT NOT NULL,
	risk_multiplier TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS strategy_positions (
	id TEXT PRIMARY KEY,
	tenant_id TEXT,
	strategy_id TEXT NOT NULL,
	instrument_id TEXT NOT NULL,
	spot_position TEXT NOT NULL,
	deriv_position TEXT NOT NULL,
	hedged_ratio TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	book_id TEXT NOT NULL,
	strategy_id TEXT,
	venue_id TEXT NOT NULL,
	venue_order_id TEXT,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	size TEXT NOT NULL,
	order_type TEXT NOT NULL,
	price TEXT,
	status TEXT NOT NULL,
	filled_size TEXT NOT NULL,
	filled_price TEXT,
	slippage TEXT,
	latency_ms INTEGER,
	leg_id TEXT,
	intent_id TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_venue_created ON orders(venue_id, created_at);

CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	book_id TEXT NOT NULL,
	venue_id TEXT NOT NULL,
	instrument TEXT NOT NULL,
	side TEXT NOT NULL,
	size TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	mark_price TEXT NOT NULL,
	unrealized_pnl TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	is_open INTEGER NOT NULL,
	opened_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS venue_inventory (
	venue_id TEXT NOT NULL,
	instrument TEXT NOT NULL,
	balance TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (venue_id, instrument)
);

CREATE TABLE IF NOT EXISTS multi_leg_intents (
	intent_id TEXT PRIMARY KEY,
	plan_json TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS leg_events (
	id TEXT PRIMARY KEY,
	intent_id TEXT NOT NULL,
	leg_id TEXT NOT NULL,
	event TEXT NOT NULL,
	detail_json TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	book_id TEXT,
	severity TEXT NOT NULL,
	before_json TEXT,
	after_json TEXT,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_log(resource_type, resource_id);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	severity TEXT NOT NULL,
	source TEXT NOT NULL,
	metadata_json TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS basis_quotes (
	instrument TEXT NOT NULL,
	spot_venue TEXT NOT NULL,
	perp_venue TEXT NOT NULL,
	basis_bps TEXT NOT NULL,
	observed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS spot_quotes (
	venue TEXT NOT NULL,
	instrument TEXT NOT NULL,
	bid TEXT NOT NULL,
	ask TEXT NOT NULL,
	observed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS arb_spreads (
	instrument TEXT NOT NULL,
	buy_venue TEXT NOT NULL,
	sell_venue TEXT NOT NULL,
	profit_bps TEXT NOT NULL,
	observed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS funding_rates (
	venue TEXT NOT NULL,
	instrument TEXT NOT NULL,
	rate_bps TEXT NOT NULL,
	observed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS market_regimes (
	observed_at DATETIME PRIMARY KEY,
	regime_type TEXT NOT NULL,
	risk_bias TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS allocator_decisions (
	id TEXT PRIMARY KEY,
	strategy_id TEXT NOT NULL,
	weight TEXT NOT NULL,
	allocated_capital TEXT NOT NULL,
	decided_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS walk_forward_results (
	id TEXT PRIMARY KEY,
	config_json TEXT NOT NULL,
	result_json TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS backtests (
	id TEXT PRIMARY KEY,
	config_json TEXT NOT NULL,
	result_json TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS kill_switches (
	scope TEXT PRIMARY KEY, -- 'global' or a book id
	active INTEGER NOT NULL,
	reason TEXT,
	updated_at DATETIME NOT NULL
);
`
