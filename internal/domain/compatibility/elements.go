package compatibility

// Element - одна из пяти стихий. Порядок совпадает с циклом порождения.
type Element int

const (
	Wood Element = iota
	Fire
	Earth
	Metal
	Water
)

const elementCount = 5

var elementNames = [elementCount]string{"wood", "fire", "earth", "metal", "water"}

// String возвращает название стихии.
func (e Element) String() string {
	if e < 0 || int(e) >= elementCount {
		return "unknown"
	}
	return elementNames[e]
}

// Generates возвращает стихию, которую порождает e:
// дерево → огонь → земля → металл → вода → дерево.
func (e Element) Generates() Element {
	return (e + 1) % elementCount
}

// Restrains возвращает стихию, которую подавляет e:
// дерево → земля → вода → огонь → металл → дерево.
func (e Element) Restrains() Element {
	return (e + 2) % elementCount
}

// Relation - отношение двух стихий.
type Relation int

const (
	RelationSame Relation = iota
	RelationGenerating
	RelationRestraining
)

// RelationBetween определяет отношение стихий без учёта направления.
// В пятичленном цикле любые две разные стихии либо соседи по порождению,
// либо связаны подавлением.
func RelationBetween(a, b Element) Relation {
	switch {
	case a == b:
		return RelationSame
	case a.Generates() == b || b.Generates() == a:
		return RelationGenerating
	default:
		return RelationRestraining
	}
}
