package native

import (
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/types"
)

const (
	historyWindow       = 90 * 24 * time.Hour
	accountChannel      = "lb"
	defaultCashFlowPage = 50
)

var startingCash = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1_000_000),
	"HKD": decimal.NewFromInt(10_000_000),
}

type order struct {
	id               string
	symbol           string
	stockName        string
	currency         string
	remark           string
	msg              string
	side             types.OrderSide
	orderType        types.OrderType
	status           types.OrderStatus
	timeInForce      types.TimeInForce
	tag              types.OrderTag
	quantity         int64
	executedQuantity int64
	price            *decimal.Decimal
	triggerPrice     *decimal.Decimal
	limitOffset      *decimal.Decimal
	trailingAmount   *decimal.Decimal
	trailingPercent  *decimal.Decimal
	executedPrice    *decimal.Decimal
	lastDone         *decimal.Decimal
	expireDate       *types.Date
	outsideRTH       *types.OutsideRTH
	triggerStatus    *types.TriggerStatus
	triggerAt        *time.Time
	submittedAt      time.Time
	updatedAt        time.Time
	history          []orderStatusEntry
}

// orderStatusEntry is one status an order went through.
type orderStatusEntry struct {
	price    *decimal.Decimal
	quantity int64
	status   types.OrderStatus
	msg      string
	at       time.Time
}

// record appends the current status to the history. Filled orders report what was executed.
func (o *order) record(now time.Time) {
	ev := orderStatusEntry{price: o.price, quantity: o.quantity, status: o.status, msg: o.msg, at: now}
	if o.status == types.OrderStatusFilled {
		ev.price, ev.quantity = o.executedPrice, o.executedQuantity
	}
	o.history = append(o.history, ev)
}

// working reports whether the order still rests in the book.
func (o *order) working() bool { return !o.status.Terminal() }

// notional is what a buy of the remaining quantity could cost.
func (o *order) notional(last decimal.Decimal) decimal.Decimal {
	price := last
	if o.price != nil {
		price = *o.price
	}
	return price.Mul(decimal.NewFromInt(o.quantity - o.executedQuantity))
}

type execution struct {
	orderID string
	tradeID string
	symbol  string
	at      time.Time
	qty     int64
	price   decimal.Decimal
}

type cashFlow struct {
	name         string
	direction    types.CashFlowDirection
	businessType types.BalanceType
	amount       decimal.Decimal
	currency     string
	at           time.Time
	symbol       string
	description  string
}

type cashFlowFilter struct {
	from         time.Time
	to           time.Time
	businessType *types.BalanceType
	symbol       string
	page         int
	size         int
}

type position struct {
	symbol    string
	name      string
	currency  string
	market    types.Market
	quantity  int64
	available int64
	cost      decimal.Decimal
}

type submitRequest struct {
	symbol          string
	orderType       types.OrderType
	side            types.OrderSide
	quantity        int64
	timeInForce     types.TimeInForce
	price           *decimal.Decimal
	triggerPrice    *decimal.Decimal
	limitOffset     *decimal.Decimal
	trailingAmount  *decimal.Decimal
	trailingPercent *decimal.Decimal
	expireDate      *types.Date
	outsideRTH      *types.OutsideRTH
	remark          string
}

type replaceRequest struct {
	orderID         string
	quantity        int64
	price           *decimal.Decimal
	triggerPrice    *decimal.Decimal
	limitOffset     *decimal.Decimal
	trailingAmount  *decimal.Decimal
	trailingPercent *decimal.Decimal
	remark          *string
}

type orderFilter struct {
	symbol   string
	orderID  string
	statuses []types.OrderStatus
	side     *types.OrderSide
	market   *types.Market
	from     time.Time
	to       time.Time
}

func (f orderFilter) match(o *order) bool {
	switch {
	case f.symbol != "" && o.symbol != f.symbol:
		return false
	case f.orderID != "" && o.id != f.orderID:
		return false
	case len(f.statuses) > 0 && !slices.Contains(f.statuses, o.status):
		return false
	case f.side != nil && o.side != *f.side:
		return false
	case f.market != nil && types.MarketOfSymbol(o.symbol) != *f.market:
		return false
	case !f.from.IsZero() && o.submittedAt.Before(f.from):
		return false
	case !f.to.IsZero() && o.submittedAt.After(f.to):
		return false
	}
	return true
}

// broker is the simulated account every trade context trades against.
type broker struct {
	l          *Library
	mu         sync.Mutex
	orders     []*order
	byID       map[string]*order
	executions []execution
	positions  map[string]*position
	cash       map[string]decimal.Decimal
	flows      []cashFlow
}

func newBroker(l *Library) *broker {
	now := l.opts.Clock()
	cash := make(map[string]decimal.Decimal, len(startingCash))
	flows := make([]cashFlow, 0, len(startingCash))
	for _, c := range sortedKeys(startingCash) {
		cash[c] = startingCash[c]
		flows = append(flows, cashFlow{
			name:         "Deposit",
			direction:    types.CashFlowDirectionIn,
			businessType: types.BalanceTypeCash,
			amount:       startingCash[c],
			currency:     c,
			at:           now,
			description:  "opening balance",
		})
	}
	return &broker{l: l, byID: make(map[string]*order), positions: make(map[string]*position), cash: cash, flows: flows}
}

func rejected(op string, code int64, msg string) *errs.E {
	return errs.New(op, errs.CodeForNative(code), errs.WithNativeCode(code), errs.WithMessage(msg))
}

func requiresPrice(t types.OrderType) bool {
	switch t {
	case types.OrderTypeLO, types.OrderTypeELO, types.OrderTypeALO, types.OrderTypeODD, types.OrderTypeLIT:
		return true
	}
	return false
}

func requiresTrigger(t types.OrderType) bool {
	return t == types.OrderTypeLIT || t == types.OrderTypeMIT
}

func trailing(t types.OrderType) bool {
	switch t {
	case types.OrderTypeTSLPAMT, types.OrderTypeTSLPPCT, types.OrderTypeTSMAMT, types.OrderTypeTSMPCT:
		return true
	}
	return false
}

func validateSubmit(req submitRequest, sec security) error {
	const op = "submit_order"
	switch {
	case req.side == types.OrderSideUnknown:
		return rejected(op, http.StatusBadRequest, "invalid order side")
	case req.orderType == types.OrderTypeUnknown:
		return rejected(op, http.StatusBadRequest, "invalid order type")
	case req.timeInForce == types.TimeInForceUnknown:
		return rejected(op, http.StatusBadRequest, "invalid time in force")
	case req.timeInForce == types.TimeInForceGoodTilDate && req.expireDate == nil:
		return rejected(op, http.StatusBadRequest, "expire date is required for good-til-date orders")
	case req.quantity <= 0:
		return rejected(op, http.StatusBadRequest, "quantity must be positive")
	case req.orderType != types.OrderTypeODD && req.quantity%int64(sec.lotSize) != 0:
		return rejected(op, http.StatusBadRequest, "quantity must be a multiple of the lot size")
	case requiresPrice(req.orderType) && (req.price == nil || !req.price.IsPositive()):
		return rejected(op, http.StatusBadRequest, "submitted price is required")
	case requiresTrigger(req.orderType) && req.triggerPrice == nil:
		return rejected(op, http.StatusBadRequest, "trigger price is required")
	}
	switch req.orderType {
	case types.OrderTypeTSLPAMT, types.OrderTypeTSMAMT:
		if req.trailingAmount == nil {
			return rejected(op, http.StatusBadRequest, "trailing amount is required")
		}
	case types.OrderTypeTSLPPCT, types.OrderTypeTSMPCT:
		if req.trailingPercent == nil {
			return rejected(op, http.StatusBadRequest, "trailing percent is required")
		}
	}
	if (req.orderType == types.OrderTypeTSLPAMT || req.orderType == types.OrderTypeTSLPPCT) && req.limitOffset == nil {
		return rejected(op, http.StatusBadRequest, "limit offset is required")
	}
	return nil
}

// submit books an order and fills it at once when it is marketable.
func (b *broker) submit(req submitRequest) (string, error) {
	sec, ok := b.l.market.info(req.symbol)
	if !ok {
		return "", rejected("submit_order", http.StatusNotFound, "security not found: "+req.symbol)
	}
	if err := validateSubmit(req, sec); err != nil {
		return "", err
	}
	last, _ := b.l.market.lastPrice(req.symbol)
	now := b.l.opts.Clock()

	b.mu.Lock()
	o := &order{
		id:              uuid.NewString(),
		symbol:          req.symbol,
		stockName:       sec.nameEN,
		currency:        sec.currency,
		remark:          req.remark,
		side:            req.side,
		orderType:       req.orderType,
		status:          types.OrderStatusNew,
		timeInForce:     req.timeInForce,
		tag:             types.OrderTagNormal,
		quantity:        req.quantity,
		price:           req.price,
		triggerPrice:    req.triggerPrice,
		limitOffset:     req.limitOffset,
		trailingAmount:  req.trailingAmount,
		trailingPercent: req.trailingPercent,
		expireDate:      req.expireDate,
		outsideRTH:      req.outsideRTH,
		submittedAt:     now,
		updatedAt:       now,
	}
	if requiresTrigger(o.orderType) || trailing(o.orderType) {
		status := types.TriggerStatusDeactive
		if trailing(o.orderType) {
			status = types.TriggerStatusActive
		}
		o.triggerStatus = &status
	}
	if err := b.checkFunds(o, last); err != nil {
		b.mu.Unlock()
		return "", err
	}
	o.record(now)
	b.orders = append(b.orders, o)
	b.byID[o.id] = o
	changed := []order{*o}
	if b.match(o, last, now) {
		changed = append(changed, *o)
	}
	b.mu.Unlock()

	b.notify(changed)
	return o.id, nil
}

func (b *broker) checkFunds(o *order, last decimal.Decimal) error {
	switch o.side {
	case types.OrderSideBuy:
		if o.notional(last).GreaterThan(b.cash[o.currency].Sub(b.frozen(o.currency, o.id))) {
			return rejected("submit_order", http.StatusBadRequest, "insufficient cash")
		}
	case types.OrderSideSell:
		held := int64(0)
		if p, ok := b.positions[o.symbol]; ok {
			held = p.available
		}
		if held < o.quantity-o.executedQuantity+b.pendingSells(o.symbol, o.id) {
			return rejected("submit_order", http.StatusBadRequest, "insufficient position")
		}
	}
	return nil
}

// frozen is the cash reserved by working buy orders other than except.
func (b *broker) frozen(currency, except string) decimal.Decimal {
	frozen := decimal.Zero
	for _, o := range b.orders {
		if o.working() && o.side == types.OrderSideBuy && o.currency == currency && o.id != except {
			last, _ := b.l.market.lastPrice(o.symbol)
			frozen = frozen.Add(o.notional(last))
		}
	}
	return frozen
}

func (b *broker) pendingSells(symbol, except string) int64 {
	var qty int64
	for _, o := range b.orders {
		if o.working() && o.side == types.OrderSideSell && o.symbol == symbol && o.id != except {
			qty += o.quantity - o.executedQuantity
		}
	}
	return qty
}

// match fills o at last when the price allows it. Conditional orders are released first.
func (b *broker) match(o *order, last decimal.Decimal, now time.Time) bool {
	if !o.working() {
		return false
	}
	if requiresTrigger(o.orderType) && o.triggerStatus != nil && *o.triggerStatus == types.TriggerStatusDeactive {
		crossed := (o.side == types.OrderSideBuy && last.GreaterThanOrEqual(*o.triggerPrice)) ||
			(o.side == types.OrderSideSell && last.LessThanOrEqual(*o.triggerPrice))
		if !crossed {
			return false
		}
		released := types.TriggerStatusReleased
		o.triggerStatus = &released
		at := now
		o.triggerAt = &at
		o.updatedAt = now
	}
	if trailing(o.orderType) {
		return false
	}
	switch o.orderType {
	case types.OrderTypeMO, types.OrderTypeAO, types.OrderTypeMIT:
	default:
		if o.price == nil {
			return false
		}
		if o.side == types.OrderSideBuy && last.GreaterThan(*o.price) {
			return false
		}
		if o.side == types.OrderSideSell && last.LessThan(*o.price) {
			return false
		}
	}
	b.fill(o, last, now)
	return true
}

func (b *broker) fill(o *order, price decimal.Decimal, now time.Time) {
	qty := o.quantity - o.executedQuantity
	notional := price.Mul(decimal.NewFromInt(qty))
	o.executedQuantity = o.quantity
	executed, done := price, price
	o.executedPrice = &executed
	o.lastDone = &done
	o.status = types.OrderStatusFilled
	o.updatedAt = now
	o.record(now)
	b.executions = append(b.executions, execution{
		orderID: o.id,
		tradeID: uuid.NewString(),
		symbol:  o.symbol,
		at:      now,
		qty:     qty,
		price:   price,
	})

	p := b.positions[o.symbol]
	if p == nil {
		sec, _ := b.l.market.info(o.symbol)
		p = &position{symbol: o.symbol, name: sec.nameEN, currency: o.currency, market: types.MarketOfSymbol(o.symbol), cost: decimal.Zero}
		b.positions[o.symbol] = p
	}
	switch o.side {
	case types.OrderSideBuy:
		total := p.cost.Mul(decimal.NewFromInt(p.quantity)).Add(notional)
		p.quantity += qty
		p.available += qty
		p.cost = total.DivRound(decimal.NewFromInt(p.quantity), 4)
		b.cash[o.currency] = b.cash[o.currency].Sub(notional)
		b.flows = append(b.flows, tradeFlow(o, types.CashFlowDirectionOut, notional, now))
	case types.OrderSideSell:
		p.quantity -= qty
		p.available -= qty
		b.cash[o.currency] = b.cash[o.currency].Add(notional)
		b.flows = append(b.flows, tradeFlow(o, types.CashFlowDirectionIn, notional, now))
		if p.quantity <= 0 {
			delete(b.positions, o.symbol)
		}
	}
}

func (b *broker) replace(req replaceRequest) error {
	const op = "replace_order"
	if req.quantity <= 0 {
		return rejected(op, http.StatusBadRequest, "quantity must be positive")
	}
	now := b.l.opts.Clock()
	b.mu.Lock()
	o, ok := b.byID[req.orderID]
	if !ok {
		b.mu.Unlock()
		return rejected(op, http.StatusNotFound, "order not found: "+req.orderID)
	}
	if !o.working() {
		b.mu.Unlock()
		return rejected(op, http.StatusBadRequest, "order is already "+statusName(o.status))
	}
	if req.quantity < o.executedQuantity {
		b.mu.Unlock()
		return rejected(op, http.StatusBadRequest, "quantity is below the executed quantity")
	}
	if requiresPrice(o.orderType) && req.price == nil {
		b.mu.Unlock()
		return rejected(op, http.StatusBadRequest, "price is required")
	}
	prev := *o
	o.quantity = req.quantity
	if req.price != nil {
		o.price = req.price
	}
	if req.triggerPrice != nil {
		o.triggerPrice = req.triggerPrice
	}
	if req.limitOffset != nil {
		o.limitOffset = req.limitOffset
	}
	if req.trailingAmount != nil {
		o.trailingAmount = req.trailingAmount
	}
	if req.trailingPercent != nil {
		o.trailingPercent = req.trailingPercent
	}
	if req.remark != nil {
		o.remark = *req.remark
	}
	last, _ := b.l.market.lastPrice(o.symbol)
	if err := b.checkFunds(o, last); err != nil {
		*o = prev
		b.mu.Unlock()
		return err
	}
	o.status = types.OrderStatusReplaced
	o.updatedAt = now
	o.record(now)
	changed := []order{*o}
	if b.match(o, last, now) {
		changed = append(changed, *o)
	}
	b.mu.Unlock()
	b.notify(changed)
	return nil
}

func (b *broker) cancel(orderID string) error {
	const op = "cancel_order"
	b.mu.Lock()
	o, ok := b.byID[orderID]
	if !ok {
		b.mu.Unlock()
		return rejected(op, http.StatusNotFound, "order not found: "+orderID)
	}
	if !o.working() {
		b.mu.Unlock()
		return rejected(op, http.StatusBadRequest, "order is already "+statusName(o.status))
	}
	o.status = types.OrderStatusCanceled
	o.updatedAt = b.l.opts.Clock()
	o.record(o.updatedAt)
	changed := []order{*o}
	b.mu.Unlock()
	b.notify(changed)
	return nil
}

// onTick fills working orders of symbol the new price crossed.
func (b *broker) onTick(symbol string, last decimal.Decimal) {
	now := b.l.opts.Clock()
	b.mu.Lock()
	var changed []order
	for _, o := range b.orders {
		if o.symbol != symbol || !o.working() {
			continue
		}
		before := o.updatedAt
		if b.match(o, last, now) || !o.updatedAt.Equal(before) {
			changed = append(changed, *o)
		}
	}
	b.mu.Unlock()
	b.notify(changed)
}

func (b *broker) workingSymbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := make(map[string]struct{})
	for _, o := range b.orders {
		if o.working() {
			set[o.symbol] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func (b *broker) notify(changed []order) {
	for i := range changed {
		b.l.orderChanged(changed[i])
	}
}

func (b *broker) findOrders(f orderFilter) []order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]order, 0)
	for _, o := range b.orders {
		if f.match(o) {
			out = append(out, *o)
		}
	}
	return out
}

// detail returns the order with a private copy of its history.
func (b *broker) detail(orderID string) (order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.byID[orderID]
	if !ok {
		return order{}, rejected("order_detail", http.StatusNotFound, "order not found: "+orderID)
	}
	out := *o
	out.history = slices.Clone(o.history)
	return out, nil
}

func tradeFlow(o *order, direction types.CashFlowDirection, amount decimal.Decimal, now time.Time) cashFlow {
	name := "Buy"
	if direction == types.CashFlowDirectionIn {
		name = "Sell"
	}
	return cashFlow{
		name:         name,
		direction:    direction,
		businessType: types.BalanceTypeStock,
		amount:       amount,
		currency:     o.currency,
		at:           now,
		symbol:       o.symbol,
		description:  name + " " + o.symbol + " order " + o.id,
	}
}

// cashFlows pages through the flows matching f, oldest first. Pages count from 1.
func (b *broker) cashFlows(f cashFlowFilter) []cashFlow {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]cashFlow, 0)
	for _, c := range b.flows {
		switch {
		case c.at.Before(f.from) || c.at.After(f.to):
		case f.businessType != nil && c.businessType != *f.businessType:
		case f.symbol != "" && c.symbol != f.symbol:
		default:
			out = append(out, c)
		}
	}
	start := (f.page - 1) * f.size
	if start >= len(out) {
		return out[:0]
	}
	return out[start:min(start+f.size, len(out))]
}

type purchaseEstimate struct {
	symbol    string
	orderType types.OrderType
	side      types.OrderSide
	price     *decimal.Decimal
	currency  string
	orderID   string
}

// maxQuantity is how many shares the account could buy with its free cash, or sell from its
// free position. The order named by orderID is treated as replaced and frees what it holds.
// The quantity is rounded down to whole lots.
func (b *broker) maxQuantity(req purchaseEstimate) (int64, error) {
	const op = "estimate_max_purchase_quantity"
	sec, ok := b.l.market.info(req.symbol)
	if !ok {
		return 0, rejected(op, http.StatusNotFound, "security not found: "+req.symbol)
	}
	if req.currency != "" && req.currency != sec.currency {
		return 0, rejected(op, http.StatusBadRequest, "currency does not match the security")
	}
	if req.orderType == types.OrderTypeUnknown {
		return 0, rejected(op, http.StatusBadRequest, "invalid order type")
	}
	if requiresPrice(req.orderType) && (req.price == nil || !req.price.IsPositive()) {
		return 0, rejected(op, http.StatusBadRequest, "price is required")
	}
	price := req.price
	if price == nil {
		last, _ := b.l.market.lastPrice(req.symbol)
		price = &last
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var qty int64
	switch req.side {
	case types.OrderSideBuy:
		free := b.cash[sec.currency].Sub(b.frozen(sec.currency, req.orderID))
		if free.IsPositive() && price.IsPositive() {
			qty = free.Div(*price).Floor().IntPart()
		}
	case types.OrderSideSell:
		if p, ok := b.positions[req.symbol]; ok {
			qty = p.available - b.pendingSells(req.symbol, req.orderID)
		}
	default:
		return 0, rejected(op, http.StatusBadRequest, "invalid order side")
	}
	if qty < 0 {
		qty = 0
	}
	if req.orderType != types.OrderTypeODD {
		qty -= qty % int64(sec.lotSize)
	}
	return qty, nil
}

func (b *broker) findExecutions(symbol, orderID string, from, to time.Time) []execution {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]execution, 0)
	for _, e := range b.executions {
		switch {
		case symbol != "" && e.symbol != symbol:
		case orderID != "" && e.orderID != orderID:
		case !from.IsZero() && e.at.Before(from):
		case !to.IsZero() && e.at.After(to):
		default:
			out = append(out, e)
		}
	}
	return out
}

type cashInfo struct {
	currency  string
	total     decimal.Decimal
	available decimal.Decimal
	frozen    decimal.Decimal
	netAssets decimal.Decimal
}

// balances reports one entry per currency, or only the requested one.
func (b *broker) balances(currency string) []cashInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	currencies := sortedKeys(b.cash)
	out := make([]cashInfo, 0, len(currencies))
	for _, c := range currencies {
		if currency != "" && c != currency {
			continue
		}
		net := b.cash[c]
		for _, p := range b.positions {
			if p.currency != c {
				continue
			}
			last, ok := b.l.market.lastPrice(p.symbol)
			if !ok {
				last = p.cost
			}
			net = net.Add(last.Mul(decimal.NewFromInt(p.quantity)))
		}
		frozen := b.frozen(c, "")
		out = append(out, cashInfo{
			currency:  c,
			total:     b.cash[c],
			available: b.cash[c].Sub(frozen),
			frozen:    frozen,
			netAssets: net,
		})
	}
	return out
}

func (b *broker) holdings(symbols []string) []position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]position, 0, len(b.positions))
	for _, p := range b.positions {
		if len(symbols) > 0 && !slices.Contains(symbols, p.symbol) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].symbol < out[j].symbol })
	return out
}

func statusName(s types.OrderStatus) string {
	switch s {
	case types.OrderStatusFilled:
		return "filled"
	case types.OrderStatusCanceled:
		return "canceled"
	case types.OrderStatusRejected:
		return "rejected"
	case types.OrderStatusExpired:
		return "expired"
	default:
		return "closed"
	}
}

func dayBounds(now time.Time) (time.Time, time.Time) {
	start := types.PeriodDay.Start(now)
	return start, start.Add(24*time.Hour - time.Nanosecond)
}
