//  Copyright (c) 2023 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package table

import "go.uber.org/increcheck/depkey"

// snapshot captures a key's value (if any) at the moment it was staged into a Transaction, plus
// whether the key was staged pessimistically.
type snapshot[V any] struct {
	value       V
	present     bool
	pessimistic bool
}

// Transaction implements the two-phase open/stage/execute update protocol: Open starts an empty
// transaction, Stage/StagePessimistic mark the keys about to be touched and snapshot each one's
// present state, and Execute runs the repopulation closure and then diffs the pre- and post-states to
// determine exactly which dependents were triggered.
type Transaction[K comparable, V any] struct {
	table  *Table[K, V]
	staged map[K]snapshot[V]
}

// Open begins a new Transaction against t.
func (t *Table[K, V]) Open() *Transaction[K, V] {
	return &Transaction[K, V]{table: t, staged: make(map[K]snapshot[V])}
}

// Stage records key's current value as the transaction's "before" state, for a non-pessimistic
// invalidation: the key is expected to be recomputed (immediately, or lazily on next Get) and
// compared for equality against its prior value.
func (tx *Transaction[K, V]) Stage(key K) {
	v, ok := tx.table.Peek(key)
	tx.staged[key] = snapshot[V]{value: v, present: ok}
}

// StagePessimistic discards key's cached value immediately and marks it as pessimistically
// invalidated: its dependents are treated as unconditionally triggered (see the engine's design
// notes on lazy/pessimistic invalidation), since no fresh value is available yet to diff against.
func (tx *Transaction[K, V]) StagePessimistic(key K) {
	tx.table.Delete(key)
	tx.staged[key] = snapshot[V]{pessimistic: true}
}

// Execute runs update (the repopulation function) and then, for every staged key, compares its
// pre-transaction value against its post-transaction value. The returned handles are the
// deduplicated union of the dependents of every key whose value changed (or that was staged
// pessimistically). update is free to leave pessimistically-staged keys absent -- they will be
// recomputed lazily on their next Get.
func (tx *Transaction[K, V]) Execute(update func() error) ([]depkey.Handle, error) {
	if err := update(); err != nil {
		tx.rollback()
		return nil, err
	}

	seen := make(map[depkey.Handle]struct{})
	var triggered []depkey.Handle
	addAll := func(handles []depkey.Handle) {
		for _, h := range handles {
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			triggered = append(triggered, h)
		}
	}

	for key, pre := range tx.staged {
		if pre.pessimistic {
			addAll(tx.table.Dependents(key))
			continue
		}
		post, ok := tx.table.Peek(key)
		changed := pre.present != ok || (ok && !tx.table.equal(pre.value, post))
		if changed {
			addAll(tx.table.Dependents(key))
		}
	}
	return triggered, nil
}

// rollback restores every staged key to its pre-transaction value, undoing whatever partial
// writes update managed to make before it failed. A pessimistically-staged key has no prior value
// to restore to (it was discarded at StagePessimistic time), so it is simply left absent -- exactly
// the state it would be in had the transaction never run.
func (tx *Transaction[K, V]) rollback() {
	for key, pre := range tx.staged {
		if pre.pessimistic || !pre.present {
			tx.table.Delete(key)
			continue
		}
		tx.table.Set(key, pre.value)
	}
}
