package repository

import "errors"

// ErrDuplicateItem は同一ツアーがすでにかごに存在する場合に返される。
var ErrDuplicateItem = errors.New("item already in cart")

// ErrItemNotFound は削除対象のアイテムがかごに存在しない場合に返される。
var ErrItemNotFound = errors.New("item not found in cart")
