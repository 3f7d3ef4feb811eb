package ffi

import (
	"sync"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/types"
)

// ErrorAPI reads and frees native error values.
type ErrorAPI interface {
	ErrorCode(err ErrorPtr) int64
	// ErrorMessage returns a string owned by the error value.
	ErrorMessage(err ErrorPtr) CString
	ErrorFree(err ErrorPtr)
}

// DecimalAPI is the native arbitrary-precision decimal. Unary and binary operations
// mutate their first argument in place.
type DecimalAPI interface {
	DecimalNew(num int64, scale uint32) DecimalPtr
	// DecimalFromString returns null when s is not a decimal.
	DecimalFromString(s CString) DecimalPtr
	// DecimalFromDouble returns null for NaN and infinities.
	DecimalFromDouble(v float64) DecimalPtr
	DecimalClone(d DecimalPtr) DecimalPtr
	DecimalFree(d DecimalPtr)
	DecimalToDouble(d DecimalPtr) float64
	// DecimalToString returns a string owned by d, valid until the next call on d.
	DecimalToString(d DecimalPtr) CString

	DecimalAbs(d DecimalPtr)
	DecimalCeil(d DecimalPtr)
	DecimalFloor(d DecimalPtr)
	DecimalFract(d DecimalPtr)
	DecimalNeg(d DecimalPtr)
	DecimalNormalize(d DecimalPtr)
	DecimalRound(d DecimalPtr)
	DecimalRoundDP(d DecimalPtr, dp uint32)
	DecimalTrunc(d DecimalPtr)
	DecimalSqrt(d DecimalPtr)
	DecimalExp(d DecimalPtr)
	DecimalExpWithTolerance(d DecimalPtr, tolerance DecimalPtr)
	DecimalLn(d DecimalPtr)
	DecimalLog10(d DecimalPtr)
	DecimalSin(d DecimalPtr)
	DecimalCos(d DecimalPtr)
	DecimalTan(d DecimalPtr)
	DecimalErf(d DecimalPtr)
	DecimalNormalCDF(d DecimalPtr)
	DecimalNormPDF(d DecimalPtr)

	DecimalAdd(a, b DecimalPtr)
	DecimalSub(a, b DecimalPtr)
	DecimalMul(a, b DecimalPtr)
	DecimalDiv(a, b DecimalPtr)
	DecimalRem(a, b DecimalPtr)
	DecimalPow(a, exp DecimalPtr)

	DecimalIsZero(d DecimalPtr) bool
	DecimalIsNegative(d DecimalPtr) bool
	DecimalIsPositive(d DecimalPtr) bool
	DecimalCmp(a, b DecimalPtr) int32
	DecimalEq(a, b DecimalPtr) bool
	DecimalGt(a, b DecimalPtr) bool
	DecimalGte(a, b DecimalPtr) bool
	DecimalLt(a, b DecimalPtr) bool
	DecimalLte(a, b DecimalPtr) bool
	// DecimalMax and DecimalMin return one of their arguments.
	DecimalMax(a, b DecimalPtr) DecimalPtr
	DecimalMin(a, b DecimalPtr) DecimalPtr
}

// ConfigAPI manages SDK configuration values.
type ConfigAPI interface {
	ConfigNew(opts *CConfigOptions) ConfigPtr
	// ConfigFromEnv returns null and stores an owned error in *errOut on failure.
	ConfigFromEnv(errOut *ErrorPtr) ConfigPtr
	ConfigFromFile(path CString, errOut *ErrorPtr) ConfigPtr
	ConfigFree(cfg ConfigPtr)
	// ConfigRefreshAccessToken completes with a null context and a CString payload.
	ConfigRefreshAccessToken(cfg ConfigPtr, expiredAt int64, cb AsyncCallback, ud Userdata)
}

// HTTPAPI is the signed OpenAPI HTTP client.
type HTTPAPI interface {
	HTTPClientNew(httpURL, appKey, appSecret, accessToken CString) HTTPClientPtr
	HTTPClientFromEnv(errOut *ErrorPtr) HTTPClientPtr
	HTTPClientFree(c HTTPClientPtr)
	// HTTPClientRequest completes with a null context and an HTTPResultPtr payload.
	HTTPClientRequest(c HTTPClientPtr, method, path CString, headers *CHTTPHeader, numHeaders uintptr, body CString, cb AsyncCallback, ud Userdata)
	HTTPResultResponseBody(res HTTPResultPtr) CString
}

// QuoteAPI is the quote context surface.
type QuoteAPI interface {
	// QuoteContextNew completes with the new context carrying one transient reference.
	QuoteContextNew(cfg ConfigPtr, cb AsyncCallback, ud Userdata)
	QuoteContextRetain(ctx QuoteContextPtr)
	QuoteContextRelease(ctx QuoteContextPtr)
	QuoteContextRefCount(ctx QuoteContextPtr) uintptr
	QuoteContextSetUserdata(ctx QuoteContextPtr, ud Userdata)
	QuoteContextUserdata(ctx QuoteContextPtr) Userdata
	QuoteContextSetFreeUserdataFunc(ctx QuoteContextPtr, f FreeUserdataFunc)
	QuoteContextMemberID(ctx QuoteContextPtr) int64
	QuoteContextQuoteLevel(ctx QuoteContextPtr) CString

	QuoteContextSetOnQuote(ctx QuoteContextPtr, cb QuotePushFunc, ud Userdata, free FreeUserdataFunc)
	QuoteContextSetOnDepth(ctx QuoteContextPtr, cb DepthPushFunc, ud Userdata, free FreeUserdataFunc)
	QuoteContextSetOnBrokers(ctx QuoteContextPtr, cb BrokersPushFunc, ud Userdata, free FreeUserdataFunc)
	QuoteContextSetOnTrades(ctx QuoteContextPtr, cb TradesPushFunc, ud Userdata, free FreeUserdataFunc)
	QuoteContextSetOnCandlestick(ctx QuoteContextPtr, cb CandlestickPushFunc, ud Userdata, free FreeUserdataFunc)

	QuoteContextSubscribe(ctx QuoteContextPtr, symbols *CString, numSymbols uintptr, subTypes types.SubFlags, isFirstPush bool, cb AsyncCallback, ud Userdata)
	QuoteContextUnsubscribe(ctx QuoteContextPtr, symbols *CString, numSymbols uintptr, subTypes types.SubFlags, cb AsyncCallback, ud Userdata)
	QuoteContextSubscribeCandlesticks(ctx QuoteContextPtr, symbol CString, period types.Period, cb AsyncCallback, ud Userdata)
	QuoteContextUnsubscribeCandlesticks(ctx QuoteContextPtr, symbol CString, period types.Period, cb AsyncCallback, ud Userdata)
	QuoteContextSubscriptions(ctx QuoteContextPtr, cb AsyncCallback, ud Userdata)

	QuoteContextStaticInfo(ctx QuoteContextPtr, symbols *CString, numSymbols uintptr, cb AsyncCallback, ud Userdata)
	QuoteContextQuote(ctx QuoteContextPtr, symbols *CString, numSymbols uintptr, cb AsyncCallback, ud Userdata)
	QuoteContextDepth(ctx QuoteContextPtr, symbol CString, cb AsyncCallback, ud Userdata)
	QuoteContextBrokers(ctx QuoteContextPtr, symbol CString, cb AsyncCallback, ud Userdata)
	QuoteContextTrades(ctx QuoteContextPtr, symbol CString, count uintptr, cb AsyncCallback, ud Userdata)
	QuoteContextIntraday(ctx QuoteContextPtr, symbol CString, cb AsyncCallback, ud Userdata)
	QuoteContextCandlesticks(ctx QuoteContextPtr, symbol CString, period types.Period, count uintptr, adjust types.AdjustType, cb AsyncCallback, ud Userdata)
	QuoteContextTradingDays(ctx QuoteContextPtr, market types.Market, begin, end *CDate, cb AsyncCallback, ud Userdata)
	// QuoteContextHistoryCandlesticksByOffset returns count bars before (or after, when forward)
	// at, which is UTC.
	QuoteContextHistoryCandlesticksByOffset(ctx QuoteContextPtr, symbol CString, period types.Period, adjust types.AdjustType, forward bool, at CDateTime, count uintptr, cb AsyncCallback, ud Userdata)
	// QuoteContextHistoryCandlesticksByDate treats a null start or end as unbounded.
	QuoteContextHistoryCandlesticksByDate(ctx QuoteContextPtr, symbol CString, period types.Period, adjust types.AdjustType, start, end *CDate, cb AsyncCallback, ud Userdata)
	QuoteContextTradingSession(ctx QuoteContextPtr, cb AsyncCallback, ud Userdata)

	QuoteContextRealtimeQuote(ctx QuoteContextPtr, symbols *CString, numSymbols uintptr, cb AsyncCallback, ud Userdata)
	QuoteContextRealtimeDepth(ctx QuoteContextPtr, symbol CString, cb AsyncCallback, ud Userdata)
	QuoteContextRealtimeBrokers(ctx QuoteContextPtr, symbol CString, cb AsyncCallback, ud Userdata)
	QuoteContextRealtimeTrades(ctx QuoteContextPtr, symbol CString, count uintptr, cb AsyncCallback, ud Userdata)
	QuoteContextRealtimeCandlesticks(ctx QuoteContextPtr, symbol CString, period types.Period, count uintptr, cb AsyncCallback, ud Userdata)
}

// TradeAPI is the trade context surface.
type TradeAPI interface {
	// TradeContextNew completes with the new context carrying one transient reference.
	TradeContextNew(cfg ConfigPtr, cb AsyncCallback, ud Userdata)
	TradeContextRetain(ctx TradeContextPtr)
	TradeContextRelease(ctx TradeContextPtr)
	TradeContextRefCount(ctx TradeContextPtr) uintptr
	TradeContextSetUserdata(ctx TradeContextPtr, ud Userdata)
	TradeContextUserdata(ctx TradeContextPtr) Userdata
	TradeContextSetFreeUserdataFunc(ctx TradeContextPtr, f FreeUserdataFunc)

	TradeContextSetOnOrderChanged(ctx TradeContextPtr, cb OrderChangedPushFunc, ud Userdata, free FreeUserdataFunc)
	TradeContextSubscribe(ctx TradeContextPtr, topics *types.TopicType, numTopics uintptr, cb AsyncCallback, ud Userdata)
	TradeContextUnsubscribe(ctx TradeContextPtr, topics *types.TopicType, numTopics uintptr, cb AsyncCallback, ud Userdata)

	TradeContextTodayOrders(ctx TradeContextPtr, opts *CGetTodayOrdersOptions, cb AsyncCallback, ud Userdata)
	TradeContextHistoryOrders(ctx TradeContextPtr, opts *CGetHistoryOrdersOptions, cb AsyncCallback, ud Userdata)
	TradeContextTodayExecutions(ctx TradeContextPtr, opts *CGetTodayExecutionsOptions, cb AsyncCallback, ud Userdata)
	TradeContextHistoryExecutions(ctx TradeContextPtr, opts *CGetHistoryExecutionsOptions, cb AsyncCallback, ud Userdata)
	TradeContextSubmitOrder(ctx TradeContextPtr, opts *CSubmitOrderOptions, cb AsyncCallback, ud Userdata)
	TradeContextReplaceOrder(ctx TradeContextPtr, opts *CReplaceOrderOptions, cb AsyncCallback, ud Userdata)
	TradeContextCancelOrder(ctx TradeContextPtr, orderID CString, cb AsyncCallback, ud Userdata)
	TradeContextAccountBalance(ctx TradeContextPtr, currency CString, cb AsyncCallback, ud Userdata)
	TradeContextStockPositions(ctx TradeContextPtr, opts *CGetStockPositionsOptions, cb AsyncCallback, ud Userdata)
	TradeContextOrderDetail(ctx TradeContextPtr, orderID CString, cb AsyncCallback, ud Userdata)
	TradeContextCashFlow(ctx TradeContextPtr, opts *CGetCashFlowOptions, cb AsyncCallback, ud Userdata)
	TradeContextEstimateMaxPurchaseQuantity(ctx TradeContextPtr, opts *CEstimateMaxPurchaseQuantityOptions, cb AsyncCallback, ud Userdata)
}

// Library is the complete native entry point table.
type Library interface {
	ErrorAPI
	DecimalAPI
	ConfigAPI
	HTTPAPI
	QuoteAPI
	TradeAPI
}

var (
	libMu sync.RWMutex
	lib   Library
)

// Load installs the process-wide native library and returns the previous one.
// Values created before a Load keep using the library they were created with.
func Load(l Library) Library {
	libMu.Lock()
	defer libMu.Unlock()
	prev := lib
	lib = l
	return prev
}

// Lib returns the loaded native library. It panics when none has been loaded.
func Lib() Library {
	libMu.RLock()
	l := lib
	libMu.RUnlock()
	if l == nil {
		panic(errs.Invariant("ffi.Lib", "no native library loaded"))
	}
	return l
}

// Loaded reports whether a native library is installed.
func Loaded() bool {
	libMu.RLock()
	defer libMu.RUnlock()
	return lib != nil
}
