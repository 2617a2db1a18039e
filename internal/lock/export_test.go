package lock

import "context"

func (l Locker) ReleaseOwned(ctx context.Context, key, token string) {
	l.releaseOwned(ctx, key, token)
}
