package pdfattach

import (
	"bytes"

	"github.com/rothskeller/pdfembed/pdfstruct"
)

// existingDoc is what a previously written document contributes to an append.
type existingDoc struct {
	// objects are the document's objects, in file order, as written.
	objects []pdfstruct.ScannedObject

	// namesDict is the object holding the /EmbeddedFiles entry, and
	// efStart:efEnd is the span of that entry's value within its Data.
	namesDict pdfstruct.ScannedObject
	efStart   int
	efEnd     int

	// tree is the name tree the Names dictionary points at, and entries
	// is the body of its /Names array, verbatim, without the brackets.
	tree    pdfstruct.ScannedObject
	entries []byte

	// count is the number of files already listed in the tree.
	count int

	// next is the lowest object number not used by any object.
	next int
}

// parseExisting extracts the objects and the embedded-file name tree from a
// document written earlier by this package.  The objects must be numbered
// 1 through N, and the name tree must be reachable from catalog object 1.
func parseExisting(data []byte) (doc *existingDoc, err error) {
	var (
		scanned []pdfstruct.ScannedObject
		trailer pdfstruct.Dict
		byNum   = make(map[int]pdfstruct.ScannedObject)
		last    = make(map[int]int)
	)
	if scanned, trailer, err = pdfstruct.ScanObjects(data); err != nil {
		return nil, malformed(err, "scanning existing document")
	}
	if len(scanned) == 0 {
		return nil, malformed(nil, "existing document contains no objects")
	}
	doc = new(existingDoc)
	// A number that appears twice is an object that was updated; only the
	// later copy is kept.
	for i, so := range scanned {
		if so.Number < 1 {
			return nil, malformed(nil, "existing document has object number %d", so.Number)
		}
		last[so.Number] = i
		byNum[so.Number] = so
		doc.next = max(doc.next, so.Number+1)
	}
	for i, so := range scanned {
		if last[so.Number] == i {
			doc.objects = append(doc.objects, so)
		}
	}
	// The rewritten xref table has an entry for every number below next, so
	// the numbering must have no holes.
	if doc.next != len(doc.objects)+1 {
		return nil, malformed(nil, "existing document has %d objects numbered up to %d", len(doc.objects), doc.next-1)
	}
	// The rewritten trailer always names object 1 as the catalog.
	if root, ok := trailer["Root"]; ok && root != (pdfstruct.Reference{Number: 1}) {
		return nil, malformed(nil, "existing document catalog is %v, not object 1", root)
	}
	var ok bool
	if doc.namesDict, doc.tree, ok = walkToNameTree(byNum); !ok {
		return nil, malformed(nil, "no embedded-file name tree reachable from the catalog in existing document")
	}
	if doc.efStart, doc.efEnd, err = pdfstruct.ValueSpan(doc.namesDict.Data, "EmbeddedFiles"); err != nil {
		return nil, malformed(err, "object %d", doc.namesDict.Number)
	}
	if doc.count, err = checkNames(doc.tree); err != nil {
		return nil, err
	}
	start, end, err := pdfstruct.ValueSpan(doc.tree.Data, "Names")
	if err != nil {
		return nil, malformed(err, "name tree object %d", doc.tree.Number)
	}
	body := doc.tree.Data[start:end]
	body = bytes.TrimPrefix(body, []byte("["))
	body = bytes.TrimSuffix(body, []byte("]"))
	doc.entries = bytes.TrimSpace(body)
	return doc, nil
}

// walkToNameTree follows the document graph from the catalog, object 1:
// /Names → /EmbeddedFiles.
func walkToNameTree(byNum map[int]pdfstruct.ScannedObject) (names, tree pdfstruct.ScannedObject, ok bool) {
	var catalog, namesDict, treeDict pdfstruct.Dict

	if _, catalog, ok = lookupDict(byNum, pdfstruct.Reference{Number: 1}); !ok {
		return names, tree, false
	}
	namesRef, ok := catalog["Names"].(pdfstruct.Reference)
	if !ok {
		return names, tree, false
	}
	if names, namesDict, ok = lookupDict(byNum, namesRef); !ok {
		return names, tree, false
	}
	treeRef, ok := namesDict["EmbeddedFiles"].(pdfstruct.Reference)
	if !ok {
		return names, tree, false
	}
	if tree, treeDict, ok = lookupDict(byNum, treeRef); !ok {
		return names, tree, false
	}
	_, ok = treeDict["Names"].(pdfstruct.Array)
	return names, tree, ok
}

// lookupDict returns the object r refers to, and its dictionary.
func lookupDict(byNum map[int]pdfstruct.ScannedObject, r pdfstruct.Reference) (so pdfstruct.ScannedObject, dict pdfstruct.Dict, ok bool) {
	if so, ok = byNum[r.Number]; !ok || so.Generation != r.Generation {
		return so, nil, false
	}
	dict, ok = so.Value.(pdfstruct.Dict)
	return so, dict, ok
}

// checkNames verifies that the tree's /Names array alternates file names and
// references, and returns the number of files it lists.
func checkNames(tree pdfstruct.ScannedObject) (count int, err error) {
	dict, _ := tree.Value.(pdfstruct.Dict)
	if _, ok := dict["Kids"]; ok {
		return 0, malformed(nil, "name tree object %d has /Kids", tree.Number)
	}
	arr, _ := dict["Names"].(pdfstruct.Array)
	if len(arr)%2 != 0 {
		return 0, malformed(nil, "name tree object %d has an odd-length /Names array", tree.Number)
	}
	for i := 0; i < len(arr); i += 2 {
		if _, ok := arr[i].(string); !ok {
			return 0, malformed(nil, "name tree object %d: /Names[%d] is %T, not a string", tree.Number, i, arr[i])
		}
		if _, ok := arr[i+1].(pdfstruct.Reference); !ok {
			return 0, malformed(nil, "name tree object %d: /Names[%d] is %T, not a reference", tree.Number, i+1, arr[i+1])
		}
	}
	return len(arr) / 2, nil
}
