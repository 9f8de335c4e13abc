/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"sort"
	"sync"
)

// accountLocks serializes mutations per user. Entries are reference counted
// and dropped once no goroutine holds or waits on them.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	ch   chan struct{}
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*accountLock)}
}

// lockAll acquires the locks for userIds in sorted order and returns the
// deduplicated id set plus a release func. Sorting keeps two callers that
// need overlapping sets from deadlocking.
func (l *accountLocks) lockAll(ctx context.Context, userIds []string) ([]string, func(), error) {
	ids := dedupeSorted(userIds)
	held := make([]string, 0, len(ids))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, id := range ids {
		if err := l.lock(ctx, id); err != nil {
			release()
			return nil, nil, err
		}
		held = append(held, id)
	}
	return ids, release, nil
}

func (l *accountLocks) lock(ctx context.Context, userId string) error {
	l.mu.Lock()
	lk, ok := l.locks[userId]
	if !ok {
		lk = &accountLock{ch: make(chan struct{}, 1)}
		l.locks[userId] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(userId, lk)
		return ctx.Err()
	}
}

func (l *accountLocks) unlock(userId string) {
	l.mu.Lock()
	lk := l.locks[userId]
	l.mu.Unlock()
	if lk == nil {
		return
	}
	<-lk.ch
	l.drop(userId, lk)
}

func (l *accountLocks) drop(userId string, lk *accountLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, userId)
	}
}

func dedupeSorted(userIds []string) []string {
	seen := make(map[string]struct{}, len(userIds))
	ids := make([]string, 0, len(userIds))
	for _, id := range userIds {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
