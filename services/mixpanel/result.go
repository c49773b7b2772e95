package mixpanel

// FetchResult is the outcome of Client.Fetch. It is either *Fetched or
// *FetchFailed; callers switch over both:
//
//	switch r := result.(type) {
//	case *mixpanel.Fetched:
//		defer r.Stream.Close()
//		...
//	case *mixpanel.FetchFailed:
//		... r.Reason
//	}
type FetchResult interface {
	fetchResult()
}

// Fetched carries the lazily decoded event stream of a successful request.
type Fetched struct {
	Stream *EventStream
}

// FetchFailed reports a transport-level failure or a cancelled request. The
// failure has already been logged by the client. Callers treat a transport
// failure as "no data"; a cancelled Reason matches context.Canceled or
// context.DeadlineExceeded.
type FetchFailed struct {
	Reason error
}

func (*Fetched) fetchResult()     {}
func (*FetchFailed) fetchResult() {}
