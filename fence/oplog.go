package fence

import (
	"sync"
)

type Commit struct {
	Seq  int
	Name string
	Ops  [][]byte
}

/*
OpLog is an in-memory Committer. Every commit gets the next sequence number. Unless a fence has
FLAG_NO_MERGE, its commit is merged into the previous entry if that has the same name: the ops are
appended and the entry takes the new sequence number, so the number it held before does not appear
in Commits() any more.
*/
type OpLog struct {
	lock    sync.Mutex
	commits []Commit
	seq     int
}

func (l *OpLog) Commit(name string, flags int, ops [][]byte) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.seq++
	n := len(l.commits)
	if flags&FLAG_NO_MERGE == 0 && n > 0 && l.commits[n-1].Name == name {
		l.commits[n-1].Ops = append(l.commits[n-1].Ops, ops...)
		l.commits[n-1].Seq = l.seq
		return l.seq, nil
	}
	l.commits = append(l.commits, Commit{Seq: l.seq, Name: name, Ops: append([][]byte(nil), ops...)})
	return l.seq, nil
}

func (l *OpLog) Commits() []Commit {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]Commit(nil), l.commits...)
}

func (l *OpLog) Sequence() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.seq
}
