package sync

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type MapTestSuite struct {
	suite.Suite
	m *Map[string, int]
}

func TestMapSuite(t *testing.T) {
	suite.Run(t, new(MapTestSuite))
}

func (s *MapTestSuite) SetupTest() {
	s.m = NewMap[string, int]()
}

func (s *MapTestSuite) TestLoadMissing() {
	v, ok := s.m.Load("conn-1")
	s.False(ok)
	s.Zero(v)
}

func (s *MapTestSuite) TestLoadOrStoreKeepsFirst() {
	actual, loaded := s.m.LoadOrStore("conn-1", 1)
	s.False(loaded)
	s.Equal(1, actual)

	actual, loaded = s.m.LoadOrStore("conn-1", 2)
	s.True(loaded)
	s.Equal(1, actual)

	v, _ := s.m.Load("conn-1")
	s.Equal(1, v)
}

func (s *MapTestSuite) TestLoadAndDelete() {
	s.m.LoadOrStore("conn-1", 7)

	v, loaded := s.m.LoadAndDelete("conn-1")
	s.True(loaded)
	s.Equal(7, v)
	s.Equal(0, s.m.Len())

	_, loaded = s.m.LoadAndDelete("conn-1")
	s.False(loaded)
}

func (s *MapTestSuite) TestConcurrentAddRemove() {
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("conn-%d", i)
			s.m.LoadOrStore(key, i)
			if i%2 == 0 {
				s.m.LoadAndDelete(key)
			}
		}(i)
	}
	wg.Wait()
	s.Equal(25, s.m.Len())
}
