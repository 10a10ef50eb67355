// Package inmemdb implements the repositories in memory. Used by tests and the "memory" database engine.
package inmemdb

import (
	"sync"

	"github.com/trezcool/nazorat/core/quiz"
	"github.com/trezcool/nazorat/core/user"
)

type (
	DB struct {
		user *userTable
		quiz *quizTables
	}

	userTable struct {
		sync.RWMutex
		table   map[int]*user.User
		pkCount int
	}

	quizTables struct {
		sync.RWMutex
		courses     map[int]quiz.Course
		enrollments map[int]map[int]bool // course id -> student ids
		tests       map[int]quiz.Test
		courseTests map[int][]int // test id -> course ids
		questions   map[int]quiz.Question
		attempts    map[int]quiz.Attempt
		answers     map[int][]quiz.StudentAnswer // attempt id -> answers
		pkCounts    map[string]int

		// per attempt exclusive locks, held for the length of a transaction
		locksMu sync.Mutex
		locks   map[int]chan struct{}
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[int]*user.User)},
		quiz: &quizTables{
			courses:     make(map[int]quiz.Course),
			enrollments: make(map[int]map[int]bool),
			tests:       make(map[int]quiz.Test),
			courseTests: make(map[int][]int),
			questions:   make(map[int]quiz.Question),
			attempts:    make(map[int]quiz.Attempt),
			answers:     make(map[int][]quiz.StudentAnswer),
			pkCounts:    make(map[string]int),
			locks:       make(map[int]chan struct{}),
		},
	}
	return db, nil
}

// nextPK must be called with the write lock held.
func (t *quizTables) nextPK(table string) int {
	t.pkCounts[table]++
	return t.pkCounts[table]
}

func (t *quizTables) attemptLock(id int) chan struct{} {
	t.locksMu.Lock()
	defer t.locksMu.Unlock()

	lock, ok := t.locks[id]
	if !ok {
		lock = make(chan struct{}, 1)
		t.locks[id] = lock
	}
	return lock
}
