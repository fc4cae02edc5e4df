/*
 * Copyright (C) 2026 IDX network community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 *
 */

package storage

import (
	"os"
	"path"
	"time"

	"github.com/nuts-foundation/go-stoabs"
	"github.com/nuts-foundation/go-stoabs/bbolt"

	"github.com/idx-network/idx-node/storage/log"
)

const fileMode = 0700
const lockAcquireTimeout = 3 * time.Second

// CreateBBoltStore opens (or creates) the BBolt database at the given path,
// creating parent directories as needed.
func CreateBBoltStore(databasePath string) (stoabs.KVStore, error) {
	if err := os.MkdirAll(path.Dir(databasePath), fileMode); err != nil {
		return nil, err
	}
	log.Logger().Debugf("Opening BBolt database: %s", databasePath)
	return bbolt.CreateBBoltStore(databasePath, stoabs.WithLockAcquireTimeout(lockAcquireTimeout))
}
