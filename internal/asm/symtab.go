package asm

// symbolTable implements sym_get_or_create from the original compiler
// (original_source/src/compiler.cpp): the first lookup of a name assigns
// it the next free id; later lookups of the same name return that id.
// The teacher's linear sym_find scan is replaced with a map, but the
// id-assignment contract is identical.
type symbolTable struct {
	ids   map[string]uint8
	names []string
}

func newSymbolTable() *symbolTable {
	return &symbolTable{ids: make(map[string]uint8)}
}

// getOrCreate returns (id, ok). ok is false once the table has
// reached isa.MaxSymbols and name is not already present.
func (s *symbolTable) getOrCreate(name string) (id uint8, ok bool) {
	if existing, found := s.ids[name]; found {
		return existing, true
	}
	if len(s.names) >= 256 {
		return 0, false
	}
	id = uint8(len(s.names))
	s.ids[name] = id
	s.names = append(s.names, name)
	return id, true
}

func (s *symbolTable) full() bool {
	return len(s.names) >= 256
}
