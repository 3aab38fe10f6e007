// Package library は図書・借用・ユーザー管理のリモートAPIをリクエストパイプライン上に提供する。
// 入力検証はすべてネットワーク呼び出しの前に行う。
package library

import (
	"net/url"
	"strconv"
)

const (
	defaultPage = 1
	defaultSize = 10
)

// pageValues はページング条件をリモートAPIのクエリパラメータ（pageNum, pageSize）に変換する。
func pageValues(page, size int) url.Values {
	if page < 1 {
		page = defaultPage
	}
	if size < 1 {
		size = defaultSize
	}
	return url.Values{
		"pageNum":  {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(size)},
	}
}

func idPath(prefix string, id int64) string {
	return prefix + "/" + strconv.FormatInt(id, 10)
}
