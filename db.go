package main

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Buckets owned by this package; the domain packages create their own.
const (
	accountBucket = "accounts"
	metaBucket    = "meta"
)

func openDB(dbpath string) *bolt.DB {
	db, err := bolt.Open(dbpath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		panic(fmt.Sprintf("unable to init the database: %v", err))
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{accountBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("unable to init the database: %v", err))
	}

	return db
}
