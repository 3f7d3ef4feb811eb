package ffi

import "github.com/coachpo/longport-go/types"

// CConfigOptions holds the arguments of ConfigNew. Null fields take SDK defaults.
type CConfigOptions struct {
	AppKey              CString
	AppSecret           CString
	AccessToken         CString
	HTTPURL             CString
	QuoteWSURL          CString
	TradeWSURL          CString
	Language            *types.Language
	EnableOvernight     *bool
	PushCandlestickMode *types.PushCandlestickMode
}

// CHTTPHeader is a request header.
type CHTTPHeader struct {
	Name  CString
	Value CString
}
