package service

var PrunedRowsTotal = prunedRowsTotal
