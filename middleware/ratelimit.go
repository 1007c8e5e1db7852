package middleware

import (
	"net"
	"net/http"

	"github.com/nurksbr/siber-sub001/utils"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	defaultLoginRate = "10-M"
	loginStorePrefix = "login_limiter"
)

// NewMemoryLimiterStore returns a process-local limiter store
func NewMemoryLimiterStore() limiter.Store {
	return memorystore.NewStoreWithOptions(limiter.StoreOptions{Prefix: loginStorePrefix})
}

// NewRedisLimiterStore returns a limiter store shared by every instance
// connected to the same redis
func NewRedisLimiterStore(client *redis.Client) (limiter.Store, error) {
	return redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: loginStorePrefix})
}

// LoginRateLimit throttles requests per client IP. rate uses the limiter's
// formatted syntax, e.g. "10-M". A failing store rejects the request.
func LoginRateLimit(store limiter.Store, rate string, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	if rate == "" {
		rate = defaultLoginRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}

	instance := limiter.New(store, parsed)
	mw := stdlibmw.NewMiddleware(instance,
		stdlibmw.WithKeyGetter(ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("login rate limit reached",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("client_ip", ClientIP(r)))
			_ = utils.WriteTooManyRequests(w, "Çok fazla deneme yaptınız, lütfen daha sonra tekrar deneyin", nil)
		}),
		stdlibmw.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate limiter store failed", zap.Error(err))
			_ = utils.WriteInternalServerError(w, "")
		}),
	)
	return mw.Handler, nil
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are only
// honoured when chi's RealIP middleware is mounted to rewrite RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
