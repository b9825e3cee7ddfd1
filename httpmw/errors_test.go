package httpmw

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("error body %q is not JSON: %v", rec.Body.String(), err)
	}
	return m
}

func TestErrorHandler_PassThroughOnSuccess(t *testing.T) {
	spy := newSpyLogger()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "value")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	})

	rec := httptest.NewRecorder()
	ErrorHandler(ErrorOptions{Logger: spy})(handler).
		ServeHTTP(rec, httptest.NewRequest("POST", "/", http.NoBody))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if rec.Header().Get("X-Custom") != "value" || rec.Body.String() != "created" {
		t.Fatal("response mangled on success path")
	}
	if spy.count() != 0 {
		t.Fatalf("%d log records on success, want 0", spy.count())
	}
}

func TestErrorHandler_TaggedError(t *testing.T) {
	spy := newSpyLogger()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(NewError("ValueError", "x", 0))
	})

	req := httptest.NewRequest("GET", "/", http.NoBody)
	req = req.WithContext(WithRequestID(req.Context(), "rid-7"))
	rec := httptest.NewRecorder()
	ErrorHandler(ErrorOptions{Logger: spy})(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type = %q", ct)
	}

	body := decodeErrorBody(t, rec)
	if body["error"] != "ValueError" || body["message"] != "x" {
		t.Fatalf("body = %v", body)
	}
	if body["request_id"] != "rid-7" {
		t.Fatalf("request_id = %v", body["request_id"])
	}
	if _, present := body["traceback"]; present {
		t.Fatal("traceback present without IncludeTraceback")
	}
}

func TestErrorHandler_LogsOnce(t *testing.T) {
	spy := newSpyLogger()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(NewError("ValueError", "x", 0))
	})

	ErrorHandler(ErrorOptions{Logger: spy})(handler).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))

	recs := spy.all()
	if len(recs) != 1 {
		t.Fatalf("%d log records, want exactly 1", len(recs))
	}
	if recs[0].level != "error" || recs[0].msg != "request failed" {
		t.Fatalf("record = %s %q", recs[0].level, recs[0].msg)
	}
	if recs[0].err == nil {
		t.Fatal("error not attached to log record")
	}
	if recs[0].field("error_kind") != "ValueError" {
		t.Fatalf("error_kind = %v", recs[0].field("error_kind"))
	}
}

func TestErrorHandler_TracebackWhenEnabled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(NewError("ValueError", "x", 0))
	})

	rec := httptest.NewRecorder()
	ErrorHandler(ErrorOptions{IncludeTraceback: true})(handler).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	body := decodeErrorBody(t, rec)
	tb, _ := body["traceback"].(string)
	if tb == "" {
		t.Fatal("traceback missing with IncludeTraceback")
	}
	if !strings.Contains(tb, "ValueError") || !strings.Contains(tb, "x") {
		t.Fatalf("traceback missing kind/message:\n%s", tb)
	}
}

func TestErrorHandler_StatusFromError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(NewError("NotFoundError", "no such thing", http.StatusNotFound))
	})

	rec := httptest.NewRecorder()
	ErrorHandler(ErrorOptions{})(handler).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body["error"] != "NotFoundError" {
		t.Fatalf("body = %v", body)
	}
}

func TestErrorHandler_PlainErrorFallsBack(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("plain failure"))
	})

	rec := httptest.NewRecorder()
	ErrorHandler(ErrorOptions{})(handler).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	body := decodeErrorBody(t, rec)
	if body["error"] != "InternalError" || body["message"] != "plain failure" {
		t.Fatalf("body = %v", body)
	}
	if body["request_id"] != "N/A" {
		t.Fatalf("request_id = %v, want N/A without RequestID middleware", body["request_id"])
	}
}

func TestErrorHandler_NonErrorPanic(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("string panic")
	})

	rec := httptest.NewRecorder()
	ErrorHandler(ErrorOptions{})(handler).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeErrorBody(t, rec)
	if body["error"] != "Panic" || body["message"] != "string panic" {
		t.Fatalf("body = %v", body)
	}
}

func TestErrorHandler_CustomRouteWins(t *testing.T) {
	spy := newSpyLogger()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(NewError("TeapotError", "short and stout", 0))
	})

	routes := []ErrorRoute{
		{
			Match: func(err error) bool { return errorKind(err) == "TeapotError" },
			Handle: func(w http.ResponseWriter, r *http.Request, err error) {
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte(`{"custom":true}`))
			},
		},
	}

	rec := httptest.NewRecorder()
	ErrorHandler(ErrorOptions{Logger: spy, Routes: routes})(handler).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}
	if rec.Body.String() != `{"custom":true}` {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if spy.count() != 0 {
		t.Fatal("custom-handled error still logged by default path")
	}
}

func TestErrorHandler_RoutesEvaluatedInOrder(t *testing.T) {
	var hit string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(NewError("X", "x", 0))
	})

	routes := []ErrorRoute{
		{
			Match: func(err error) bool { return true },
			Handle: func(w http.ResponseWriter, r *http.Request, err error) {
				hit = "first"
				w.WriteHeader(http.StatusBadRequest)
			},
		},
		{
			Match: func(err error) bool { return true },
			Handle: func(w http.ResponseWriter, r *http.Request, err error) {
				hit = "second"
				w.WriteHeader(http.StatusConflict)
			},
		},
	}

	rec := httptest.NewRecorder()
	ErrorHandler(ErrorOptions{Routes: routes})(handler).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	if hit != "first" || rec.Code != http.StatusBadRequest {
		t.Fatalf("hit=%q status=%d, want first/400", hit, rec.Code)
	}
}

func TestErrorHandler_OnPanicCallback(t *testing.T) {
	var called bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	ErrorHandler(ErrorOptions{OnPanic: func() { called = true }})(handler).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))

	if !called {
		t.Fatal("OnPanic not invoked")
	}
}

func TestErrorHandler_AbortHandlerPassesThrough(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	ErrorHandler(ErrorOptions{})(handler).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))
	t.Fatal("expected re-panic")
}

func TestErrorHandler_HeadersAlreadySent(t *testing.T) {
	spy := newSpyLogger()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		panic(errors.New("mid-stream failure"))
	})

	rec := httptest.NewRecorder()
	ErrorHandler(ErrorOptions{Logger: spy})(handler).
		ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	// status and partial body stand; failure is still logged
	if rec.Code != http.StatusOK || rec.Body.String() != "partial" {
		t.Fatalf("response rewritten after headers were sent: %d %q", rec.Code, rec.Body.String())
	}
	if spy.count() != 1 {
		t.Fatalf("%d log records, want 1", spy.count())
	}
}

func TestErrorHandler_RequestIDFromResponseHeader(t *testing.T) {
	// RequestID runs inside the error layer and stores the ID on a
	// context that only flows inward. The body must still carry the real
	// ID, picked up from the response header the two layers share.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(NewError("ValueError", "boom", 0))
	})

	rec := httptest.NewRecorder()
	chained := Chain(handler,
		ErrorHandler(ErrorOptions{}),
		RequestID(""),
	)
	chained.ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	want := rec.Header().Get(DefaultRequestIDHeader)
	if want == "" {
		t.Fatal("no request ID header on response")
	}
	body := decodeErrorBody(t, rec)
	if body["request_id"] != want {
		t.Fatalf("request_id = %v, want %q", body["request_id"], want)
	}
}

func TestErrorHandler_RequestIDCustomHeader(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	})

	rec := httptest.NewRecorder()
	chained := Chain(handler,
		ErrorHandler(ErrorOptions{RequestIDHeader: "X-Correlation-ID"}),
		RequestID("X-Correlation-ID"),
	)
	chained.ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))

	want := rec.Header().Get("X-Correlation-ID")
	if want == "" {
		t.Fatal("no correlation ID header on response")
	}
	if body := decodeErrorBody(t, rec); body["request_id"] != want {
		t.Fatalf("request_id = %v, want %q", body["request_id"], want)
	}
}
