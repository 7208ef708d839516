package jobs

import (
	"github.com/hibiken/asynq"

	"github.com/rfpdesk/rfpdesk/internal/platform/cache"
)

// RedisOpt translates addr, a host:port or redis URL, into asynq connection
// options sharing the cache package's parsing rules.
func RedisOpt(addr string) (asynq.RedisClientOpt, error) {
	opts, err := cache.Options(addr)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Network:   opts.Network,
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}
